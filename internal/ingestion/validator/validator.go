// Package validator checks ingestion requests and reports every failing
// field at once.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
)

const (
	maxSourceLength = 1024
	maxTextLength   = 4 << 20
	maxChunks       = 5000
	maxKeyLength    = 255
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	source := strings.TrimSpace(req.Source)
	if source == "" {
		errs["source"] = "source is required"
	} else if len(source) > maxSourceLength {
		errs["source"] = fmt.Sprintf("source must be at most %d characters", maxSourceLength)
	}

	hasText := strings.TrimSpace(req.Text) != ""
	switch {
	case hasText && len(req.Chunks) > 0:
		errs["text"] = "text and chunks are mutually exclusive"
	case !hasText && len(req.Chunks) == 0:
		errs["text"] = "one of text or chunks is required"
	case len(req.Text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	case len(req.Chunks) > maxChunks:
		errs["chunks"] = fmt.Sprintf("at most %d chunks per request", maxChunks)
	}
	for i, c := range req.Chunks {
		if strings.TrimSpace(c.Content) == "" {
			errs[fmt.Sprintf("chunks[%d].content", i)] = "content must not be blank"
		}
		if c.Page != nil && *c.Page < 0 {
			errs[fmt.Sprintf("chunks[%d].page", i)] = "page must be >= 0"
		}
	}

	if len(req.IdempotencyKey) > maxKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxKeyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
