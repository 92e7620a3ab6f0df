package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/tracing"
)

// Source is one chunk handed to the generator, numbered as cited.
type Source struct {
	Label   int    `json:"label"`
	UID     string `json:"uid"`
	Source  string `json:"source"`
	Page    string `json:"page"`
	Domain  string `json:"domain,omitempty"`
	Content string `json:"content"`
}

// Answer is the result of a full pipeline run.
type Answer struct {
	QueryID    string                `json:"query_id"`
	Query      string                `json:"query"`
	Answer     string                `json:"answer"`
	Sources    []Source              `json:"source_documents"`
	NumSources int                   `json:"num_sources"`
	Citations  []generation.Citation `json:"citations"`
	Queries    []string              `json:"all_queries"`
	// Evidence is the ranked set before compression, with its scores.
	Evidence []chunk.Scored     `json:"evidence"`
	Degraded bool               `json:"degraded"`
	Warnings []string           `json:"warnings,omitempty"`
	Timings  map[string]float64 `json:"timings_ms"`
	Snapshot uint64             `json:"snapshot_version"`
}

// Retrieval is the candidate pool for a query across all its variants.
type Retrieval struct {
	Queries    []string       `json:"queries"`
	Candidates []chunk.Scored `json:"candidates"`
	Snapshot   uint64         `json:"snapshot_version"`
	// ExpansionErr is set when expansion failed and only the original
	// query was used.
	ExpansionErr error `json:"-"`
}

func (p *Pipeline) stage(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := tracing.StartChildSpan(ctx, name)
	start := time.Now()
	return ctx, func() {
		span.End()
		if p.metrics != nil {
			p.metrics.StageLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}
}

// Retrieve expands query, retrieves each variant and merges the results
// first-seen-wins by UID. A blank query returns an empty pool.
func (p *Pipeline) Retrieve(ctx context.Context, query string) (*Retrieval, error) {
	retriever, version, err := p.activeRetriever()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return &Retrieval{Queries: []string{}, Candidates: []chunk.Scored{}, Snapshot: version}, nil
	}

	out := &Retrieval{Snapshot: version}
	out.Queries, out.ExpansionErr = p.expand(ctx, query)

	sctx, end := p.stage(ctx, "retrieve")
	results := make([][]chunk.Scored, 0, len(out.Queries))
	for _, q := range out.Queries {
		r, err := retriever.Retrieve(sctx, q, p.opts.Retrieval)
		if err != nil {
			end()
			return nil, err
		}
		results = append(results, r)
	}
	out.Candidates = retrieval.MergeVariants(results...)
	end()
	return out, nil
}

// expand never fails: an expander error degrades to the original query.
func (p *Pipeline) expand(ctx context.Context, query string) ([]string, error) {
	ctx, end := p.stage(ctx, "expand")
	defer end()

	variants, err := p.deps.Expander.MultiQuery(ctx, query, p.opts.NumQueries)
	if err != nil {
		logger.FromContext(ctx).Warn("query expansion failed, using original query only", "error", err)
		if p.metrics != nil {
			p.metrics.FallbacksTotal.WithLabelValues("expand").Inc()
		}
		return []string{query}, err
	}
	if len(variants) == 0 || !strings.EqualFold(variants[0], query) {
		variants = append([]string{query}, variants...)
	}
	return variants, nil
}

// RetrieveForEvaluation runs hybrid retrieval for query alone, without
// expansion or re-ranking.
func (p *Pipeline) RetrieveForEvaluation(ctx context.Context, query string, k int) ([]chunk.Scored, error) {
	retriever, _, err := p.activeRetriever()
	if err != nil {
		return nil, err
	}
	params := p.opts.Retrieval
	params.K = k
	params.BM25CandidatePool = max(params.BM25CandidatePool, k)
	return retriever.Retrieve(ctx, query, params)
}

// Run answers query end to end. Expansion, re-ranking, compression and
// generation failures degrade the answer and are reported in Warnings;
// retrieval failures are returned.
func (p *Pipeline) Run(ctx context.Context, query string) (*Answer, error) {
	if p.deps.Generator == nil {
		return nil, apperrors.Configf("no generator configured")
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	queryID := logger.RequestID(ctx)
	if queryID == "" {
		queryID = uuid.NewString()
	}
	ctx = logger.WithQueryID(ctx, queryID)
	ctx, root := tracing.StartSpan(ctx, "query", queryID)
	log := logger.FromContext(ctx).With("component", "pipeline")

	ans := &Answer{
		QueryID:   queryID,
		Query:     strings.TrimSpace(query),
		Sources:   []Source{},
		Citations: []generation.Citation{},
		Queries:   []string{},
		Evidence:  []chunk.Scored{},
	}
	finish := func(outcome string) {
		root.SetAttr("outcome", outcome)
		root.End()
		if p.opts.TraceSampleRate > 0 && rand.Float64() < p.opts.TraceSampleRate {
			root.Log(log)
		}
		ans.Timings = root.StageMillis()
		ans.Timings["total"] = float64(root.Duration.Microseconds()) / 1000
		if p.metrics != nil {
			p.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
		}
	}

	if ans.Query == "" {
		ans.Answer = generation.InvalidQueryAnswer
		finish("empty_query")
		return ans, nil
	}

	pool, err := p.Retrieve(ctx, ans.Query)
	if err != nil {
		finish("error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Join(apperrors.ErrTimeout, err)
		}
		return nil, err
	}
	ans.Queries = pool.Queries
	ans.Snapshot = pool.Snapshot
	if pool.ExpansionErr != nil {
		ans.degrade("query expansion unavailable")
	}

	ans.Evidence = p.narrow(ctx, ans, pool.Candidates)
	docs := chunk.Chunks(ans.Evidence)

	if p.opts.Compression && p.deps.Compressor != nil && len(docs) > 0 {
		cctx, end := p.stage(ctx, "compress")
		res := p.deps.Compressor.Compress(cctx, ans.Query, docs)
		end()
		if res.Degraded {
			log.Warn("compression degraded", "error", res.Err)
			ans.degrade("context compression partially failed")
		}
		docs = res.Value
	}

	gctx, end := p.stage(ctx, "generate")
	gen := p.deps.Generator.Generate(gctx, ans.Query, docs)
	end()
	if gen.Degraded {
		log.Warn("generation degraded", "error", gen.Err)
		ans.degrade("answer generation unavailable")
	}

	ans.Answer = gen.Value.Text
	ans.Citations = gen.Value.Citations
	for i, d := range docs[:min(gen.Value.ContextChunks, len(docs))] {
		ans.Sources = append(ans.Sources, Source{
			Label:   i + 1,
			UID:     d.UID(),
			Source:  d.Metadata.Source,
			Page:    d.Metadata.PageLabel(),
			Domain:  d.Metadata.Domain,
			Content: d.Content,
		})
	}
	ans.NumSources = len(ans.Sources)

	switch {
	case len(ans.Evidence) == 0:
		finish("no_evidence")
	case ans.Degraded:
		finish("degraded")
	default:
		finish("answered")
	}
	log.Info("query answered",
		"variants", len(ans.Queries),
		"candidates", len(pool.Candidates),
		"sources", ans.NumSources,
		"degraded", ans.Degraded,
	)
	return ans, nil
}

// narrow reduces the merged pool to the final evidence set. With a
// re-ranker and more than RerankTopN candidates, the first RerankCandidates
// are re-ranked; otherwise the first RerankTopN are kept in fused order. A
// re-ranker failure falls back to fused order.
func (p *Pipeline) narrow(ctx context.Context, ans *Answer, candidates []chunk.Scored) []chunk.Scored {
	topN := p.opts.RerankTopN
	if p.deps.Reranker == nil || len(candidates) <= topN {
		return candidates[:min(topN, len(candidates))]
	}

	rctx, end := p.stage(ctx, "rerank")
	window := candidates[:min(p.opts.RerankCandidates, len(candidates))]
	ranked, err := p.deps.Reranker.Rerank(rctx, ans.Query, chunk.Chunks(window), topN)
	end()
	if err != nil {
		logger.FromContext(ctx).Warn("re-ranking failed, keeping fused order", "error", err)
		if p.metrics != nil {
			p.metrics.FallbacksTotal.WithLabelValues("rerank").Inc()
		}
		ans.degrade("re-ranking unavailable")
		return candidates[:topN]
	}
	return ranked
}

func (a *Answer) degrade(warning string) {
	a.Degraded = true
	a.Warnings = append(a.Warnings, warning)
}
