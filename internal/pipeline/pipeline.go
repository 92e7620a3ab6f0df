// Package pipeline owns the retrieval core's lifecycle. A Pipeline is built
// once per process, indexes a corpus snapshot, and then serves queries
// through expansion, hybrid retrieval, cross-variant merge, re-ranking and
// the downstream compression and generation stages.
//
// Queries are served only in StateReady. A rebuild moves the pipeline to
// StateRebuildInProgress, during which queries fail with ErrNotReady; the
// previous snapshot stays in place if the rebuild fails.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/vector"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

// DenseIndex is a vector store that can be rebuilt from a corpus.
type DenseIndex interface {
	vector.Store
	Build(ctx context.Context, chunks []chunk.Chunk) error
}

// Reranker narrows a candidate list to the topN most relevant chunks.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []chunk.Chunk, topN int) ([]chunk.Scored, error)
}

type Compressor interface {
	Compress(ctx context.Context, query string, docs []chunk.Chunk) generation.Result[[]chunk.Chunk]
}

type Generator interface {
	Generate(ctx context.Context, query string, docs []chunk.Chunk) generation.Result[generation.Answer]
}

// Loader produces the corpus snapshot for a rebuild.
type Loader interface {
	Load(ctx context.Context) ([]chunk.Chunk, error)
}

// Deps are the pipeline's collaborators. Reranker, Compressor and Loader
// are optional.
type Deps struct {
	Dense      DenseIndex
	Expander   expansion.Expander
	Reranker   Reranker
	Compressor Compressor
	Generator  Generator
	Loader     Loader
	Tokenizer  lexical.Tokenizer
}

// Options are the per-query knobs.
type Options struct {
	// Retrieval applies to each query variant.
	Retrieval        retrieval.Params
	NumQueries       int
	RerankCandidates int
	RerankTopN       int
	Compression      bool
	Timeout          time.Duration
	// TraceSampleRate is the fraction of queries whose span tree is
	// logged. Zero disables span logging; stage timings are always kept.
	TraceSampleRate float64
}

// OptionsFromConfig maps the retrieval section of the configuration.
func OptionsFromConfig(cfg config.RetrievalConfig) Options {
	return Options{
		Retrieval: retrieval.Params{
			K:                 cfg.TopK,
			Alpha:             cfg.Alpha,
			BM25CandidatePool: cfg.BM25CandidatePool,
		},
		NumQueries:       cfg.NumQueries,
		RerankCandidates: cfg.RerankCandidates,
		RerankTopN:       cfg.RerankTopN,
		Compression:      cfg.Compression,
		Timeout:          cfg.Timeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Retrieval == (retrieval.Params{}) {
		o.Retrieval = retrieval.DefaultParams()
	}
	if o.NumQueries < 1 {
		o.NumQueries = 2
	}
	if o.RerankCandidates < 1 {
		o.RerankCandidates = 20
	}
	if o.RerankTopN < 1 {
		o.RerankTopN = 5
	}
	return o
}

type Pipeline struct {
	deps    Deps
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	version   uint64
	corpus    int
	retriever *retrieval.HybridRetriever
}

// New returns an unbuilt pipeline. m may be nil.
func New(deps Deps, opts Options, m *metrics.Metrics) (*Pipeline, error) {
	if deps.Dense == nil {
		return nil, apperrors.Configf("pipeline requires a dense index")
	}
	if deps.Expander == nil {
		deps.Expander = expansion.Passthrough{}
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = lexical.Whitespace
	}
	opts = opts.withDefaults()
	if err := opts.Retrieval.Validate(); err != nil {
		return nil, apperrors.Configf("invalid retrieval parameters: %v", err)
	}
	p := &Pipeline{
		deps:    deps,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "pipeline"),
	}
	p.setState(StateUninitialized)
	return p, nil
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Ready returns nil when queries can be served.
func (p *Pipeline) Ready(context.Context) error {
	if s := p.State(); s != StateReady {
		return fmt.Errorf("%w: pipeline is %s", apperrors.ErrNotReady, s)
	}
	return nil
}

// Snapshot returns the version and size of the active corpus snapshot.
// The version starts at 1 and increases with every successful build.
func (p *Pipeline) Snapshot() (version uint64, chunks int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version, p.corpus
}

// setState must be called with mu held or before the pipeline is shared.
func (p *Pipeline) setState(s State) {
	p.state = s
	if p.metrics != nil {
		p.metrics.PipelineState.Set(float64(s))
	}
}

// Build indexes chunks and makes them the active snapshot. Blank chunks are
// dropped; an empty corpus fails with ErrEmptyCorpus. Build blocks until
// both indexes are complete and fails with ErrNotReady if another build is
// running.
func (p *Pipeline) Build(ctx context.Context, chunks []chunk.Chunk) error {
	p.mu.Lock()
	prev := p.state
	next, ok := prev.buildTarget()
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: index build already in progress", apperrors.ErrNotReady)
	}
	p.setState(next)
	p.mu.Unlock()

	start := time.Now()
	retriever, n, err := p.index(ctx, chunks)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.setState(prev)
		if p.metrics != nil {
			p.metrics.IndexBuildsTotal.WithLabelValues("failure").Inc()
		}
		p.logger.Error("index build failed", "error", err, "state", prev.String())
		return err
	}

	p.retriever = retriever
	p.version++
	p.corpus = n
	p.setState(StateReady)
	if p.metrics != nil {
		p.metrics.IndexBuildsTotal.WithLabelValues("success").Inc()
		p.metrics.CorpusChunks.Set(float64(n))
	}
	p.logger.Info("index built",
		"chunks", n,
		"snapshot_version", p.version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Rebuild reloads the corpus through the configured Loader and builds it.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	if p.deps.Loader == nil {
		return apperrors.Configf("no corpus loader configured")
	}
	chunks, err := p.deps.Loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	return p.Build(ctx, chunks)
}

func (p *Pipeline) index(ctx context.Context, chunks []chunk.Chunk) (*retrieval.HybridRetriever, int, error) {
	valid, err := chunk.Validate(chunks)
	if err != nil {
		return nil, 0, err
	}
	lex := lexical.New(lexical.WithTokenizer(p.deps.Tokenizer))
	if err := lex.Build(valid); err != nil {
		return nil, 0, err
	}
	if err := p.deps.Dense.Build(ctx, valid); err != nil {
		return nil, 0, err
	}
	return retrieval.NewHybridRetriever(p.deps.Dense, lex, p.metrics), len(valid), nil
}

func (p *Pipeline) activeRetriever() (*retrieval.HybridRetriever, uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateReady {
		return nil, 0, fmt.Errorf("%w: pipeline is %s", apperrors.ErrNotReady, p.state)
	}
	return p.retriever, p.version, nil
}
