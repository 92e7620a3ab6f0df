package chunk

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	strippedChars = regexp.MustCompile(`[^\w\s.?!\-:;]`)
)

// Preprocess collapses whitespace runs to a single space and removes
// characters outside word characters and basic punctuation.
func Preprocess(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strippedChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// NormalizeMetadata maps loader-specific metadata onto the fixed Metadata
// shape. The source comes from "source", "file_path" or "path" in that
// order; "page" accepts integers, floats with no fraction, or numeric
// strings. Unknown keys are dropped.
func NormalizeMetadata(raw map[string]any) Metadata {
	var m Metadata
	for _, key := range []string{"source", "file_path", "path"} {
		if v, ok := raw[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" && v != nil {
				m.Source = s
				break
			}
		}
	}
	if m.Source == "" {
		m.Source = UnknownSource
	}
	if p, ok := pageValue(raw["page"]); ok {
		m.Page = &p
	}
	if d, ok := raw["domain"].(string); ok {
		m.Domain = strings.TrimSpace(d)
	}
	return m
}

func pageValue(v any) (int, bool) {
	switch p := v.(type) {
	case int:
		return p, p >= 0
	case int64:
		return int(p), p >= 0
	case float64:
		if p < 0 || p != math.Trunc(p) {
			return 0, false
		}
		return int(p), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(p))
		return n, err == nil && n >= 0
	default:
		return 0, false
	}
}

// DomainFor returns the first directory of path below root, or "" when path
// sits directly under root or outside it.
func DomainFor(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// Validate drops blank chunks and reports ErrEmptyCorpus when nothing
// remains. The returned slice preserves input order.
func Validate(chunks []Chunk) ([]Chunk, error) {
	valid := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.IsBlank() {
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	return valid, nil
}
