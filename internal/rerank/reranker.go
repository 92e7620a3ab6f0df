// Package rerank reorders retrieval candidates with a cross-encoder that
// scores each (query, passage) pair jointly.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

// Pair is one cross-encoder input.
type Pair struct {
	Query    string `json:"query"`
	Document string `json:"document"`
}

// Model scores pairs. It must return exactly one score per pair, in order.
type Model interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
}

type Reranker struct {
	model   Model
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a Reranker over model. m may be nil.
func New(model Model, m *metrics.Metrics) *Reranker {
	return &Reranker{
		model:   model,
		metrics: m,
		logger:  slog.Default().With("component", "reranker"),
	}
}

// Rerank scores docs against query in one batched model call and returns at
// most topN, ordered by score then content, both descending. Chunks with
// blank content are skipped. A blank query or no usable documents yields an
// empty result; a model failure is returned, never swallowed.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []chunk.Chunk, topN int) ([]chunk.Scored, error) {
	if strings.TrimSpace(query) == "" || len(docs) == 0 {
		return []chunk.Scored{}, nil
	}

	kept := make([]chunk.Chunk, 0, len(docs))
	pairs := make([]Pair, 0, len(docs))
	for _, d := range docs {
		if d.IsBlank() {
			continue
		}
		kept = append(kept, d)
		pairs = append(pairs, Pair{Query: query, Document: d.Content})
	}
	if len(kept) == 0 {
		return []chunk.Scored{}, nil
	}
	if topN < 1 {
		return nil, fmt.Errorf("%w: top_n must be >= 1, got %d", apperrors.ErrInvalidInput, topN)
	}

	start := time.Now()
	scores, err := r.model.Predict(ctx, pairs)
	if err == nil && len(scores) != len(pairs) {
		err = fmt.Errorf("model returned %d scores for %d pairs", len(scores), len(pairs))
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.CollaboratorErrs.WithLabelValues("reranker").Inc()
		}
		return nil, apperrors.Collaborator("reranker", err)
	}

	ranked := make([]chunk.Scored, len(kept))
	for i, c := range kept {
		ranked[i] = chunk.Scored{Chunk: c, Score: scores[i]}
	}
	slices.SortFunc(ranked, chunk.CompareRanked)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	logger.FromContext(ctx).Debug("rerank completed",
		"component", "reranker",
		"candidates", len(docs),
		"scored", len(kept),
		"returned", len(ranked),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return ranked, nil
}
