// Package retrieval fuses the lexical and dense candidate lists into a
// single ranked list and merges the lists produced for query variants.
//
// Fusion: each side is min-max normalised independently, then every chunk
// receives alpha*dense + (1-alpha)*lexical, summed under its UID so a chunk
// found by both sides collects both contributions. Results are ordered by
// fused score descending with chunk content descending as the tie-break and
// truncated to k.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

// LexicalSearcher returns the n best lexical hits, best first.
type LexicalSearcher interface {
	Search(query string, n int) []lexical.Hit
}

// Params are the per-call retrieval knobs.
type Params struct {
	K                 int     `json:"k"`
	Alpha             float64 `json:"alpha"`
	BM25CandidatePool int     `json:"bm25_candidate_pool"`
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{K: 10, Alpha: 0.5, BM25CandidatePool: 50}
}

func (p Params) Validate() error {
	switch {
	case p.K < 1:
		return fmt.Errorf("%w: k must be >= 1, got %d", apperrors.ErrInvalidInput, p.K)
	case p.Alpha < 0 || p.Alpha > 1:
		return fmt.Errorf("%w: alpha must be within [0,1], got %v", apperrors.ErrInvalidInput, p.Alpha)
	case p.BM25CandidatePool < p.K:
		return fmt.Errorf("%w: bm25 candidate pool %d is smaller than k %d", apperrors.ErrInvalidInput, p.BM25CandidatePool, p.K)
	}
	return nil
}

type HybridRetriever struct {
	dense   vector.Store
	lexical LexicalSearcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHybridRetriever wires the two candidate sources. m may be nil.
func NewHybridRetriever(dense vector.Store, lex LexicalSearcher, m *metrics.Metrics) *HybridRetriever {
	return &HybridRetriever{
		dense:   dense,
		lexical: lex,
		metrics: m,
		logger:  slog.Default().With("component", "hybrid-retriever"),
	}
}

// Retrieve returns at most p.K chunks for query. A blank query yields an
// empty result and no error. Vector store failures are returned wrapped in
// ErrCollaborator.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, p Params) ([]chunk.Scored, error) {
	if strings.TrimSpace(query) == "" {
		return []chunk.Scored{}, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "hybrid-retriever")

	matches, err := r.dense.SimilaritySearchWithScore(ctx, query, 2*p.K)
	if err != nil {
		if r.metrics != nil {
			r.metrics.CollaboratorErrs.WithLabelValues("vector").Inc()
		}
		return nil, apperrors.Collaborator("vector", err)
	}
	hits := r.lexical.Search(query, p.BM25CandidatePool)

	denseScores := make([]float64, len(matches))
	for i, m := range matches {
		denseScores[i] = DistanceToSimilarity(m.Distance)
	}
	lexScores := make([]float64, len(hits))
	for i, h := range hits {
		lexScores[i] = h.Score
	}
	denseNorm, denseFlat := MinMax(denseScores)
	lexNorm, lexFlat := MinMax(lexScores)
	r.warnDegenerate(log, "dense", denseFlat, denseScores)
	r.warnDegenerate(log, "lexical", lexFlat, lexScores)

	fused := make(map[string]*chunk.Scored, len(matches)+len(hits))
	add := func(c chunk.Chunk, contribution float64) {
		uid := c.UID()
		if e, ok := fused[uid]; ok {
			e.Score += contribution
			return
		}
		fused[uid] = &chunk.Scored{Chunk: c, Score: contribution}
	}
	for i, m := range matches {
		add(m.Chunk, p.Alpha*denseNorm[i])
	}
	for i, h := range hits {
		add(h.Chunk, (1-p.Alpha)*lexNorm[i])
	}

	ranked := make([]chunk.Scored, 0, len(fused))
	for _, e := range fused {
		ranked = append(ranked, *e)
	}
	slices.SortFunc(ranked, chunk.CompareRanked)
	if len(ranked) > p.K {
		ranked = ranked[:p.K]
	}

	if r.metrics != nil {
		r.metrics.FusedCandidates.Observe(float64(len(fused)))
	}
	log.Debug("hybrid retrieval completed",
		"dense_candidates", len(matches),
		"lexical_candidates", len(hits),
		"fused", len(fused),
		"returned", len(ranked),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return ranked, nil
}

func (r *HybridRetriever) warnDegenerate(log *slog.Logger, side string, flat bool, scores []float64) {
	if !flat {
		return
	}
	log.Warn("degenerate score distribution, normalisation skipped",
		"side", side,
		"candidates", len(scores),
		"score", scores[0],
	)
	if r.metrics != nil {
		r.metrics.DegenerateScores.WithLabelValues(side).Inc()
	}
}
