package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

const compressPrompt = `Extract only the sentences that directly answer the question.
Copy them exactly as they appear in the document. If no sentence is relevant, output "None".

Example:
Question: How many days of annual leave do employees get?
Document: Employees accrue leave monthly. Full-time employees receive 20 days of annual leave. Leave requests go to the manager.
Relevant sentences: Full-time employees receive 20 days of annual leave.

Question:
%s

Document:
%s

Relevant sentences:`

const (
	defaultCompressDocs = 5
	// excerptRunes bounds how much of each chunk goes into the prompt.
	excerptRunes = 1500
)

type CompressorOptions struct {
	Temperature float64
	MaxDocs     int
}

// Compressor reduces each evidence chunk to the sentences relevant to the
// query, keeping the chunk's metadata.
type Compressor struct {
	model   llms.Model
	opts    CompressorOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCompressor(model llms.Model, opts CompressorOptions, m *metrics.Metrics) *Compressor {
	if opts.MaxDocs <= 0 {
		opts.MaxDocs = defaultCompressDocs
	}
	return &Compressor{
		model:   model,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "compressor"),
	}
}

// Compress works on the first MaxDocs chunks. A chunk whose extraction
// fails is kept verbatim and the result is marked degraded; a chunk the
// model judges irrelevant is dropped. If nothing survives, the uncompressed
// window is returned.
func (c *Compressor) Compress(ctx context.Context, query string, docs []chunk.Chunk) Result[[]chunk.Chunk] {
	window := docs[:min(len(docs), c.opts.MaxDocs)]
	if strings.TrimSpace(query) == "" || len(window) == 0 {
		return ok(window)
	}

	out := make([]chunk.Chunk, 0, len(window))
	var errs []error
	for _, d := range window {
		prompt := fmt.Sprintf(compressPrompt, strings.TrimSpace(query), excerpt(d.Content, excerptRunes))
		text, err := llm.Complete(ctx, c.model, prompt, c.opts.Temperature)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.UID(), err))
			c.logger.Warn("compression failed, keeping original chunk", "uid", d.UID(), "error", err)
			if c.metrics != nil {
				c.metrics.FallbacksTotal.WithLabelValues("compress").Inc()
			}
			out = append(out, d)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.EqualFold(strings.Trim(text, ". \""), "none") {
			continue
		}
		out = append(out, chunk.Chunk{Content: text, Metadata: d.Metadata})
	}

	if len(out) == 0 {
		out = window
	}
	if len(errs) > 0 {
		if c.metrics != nil {
			c.metrics.CollaboratorErrs.WithLabelValues("compressor").Inc()
		}
		return degraded(out, apperrors.Collaborator("compressor", errors.Join(errs...)))
	}
	return ok(out)
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
