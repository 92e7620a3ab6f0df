package pipeline

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/rerank"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/vector"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

// Wired is a pipeline assembled from configuration together with the
// collaborators the hosting process also needs (health checks, ingestion).
type Wired struct {
	Pipeline *Pipeline
	Splitter chunk.Splitter
	// Rerank is nil when re-ranking is disabled.
	Rerank *rerank.Client
}

// FromConfig builds every collaborator described by cfg. db is required
// when the corpus source is "postgres" and ignored otherwise. m may be nil.
func FromConfig(cfg *config.Config, db *postgres.Client, m *metrics.Metrics) (*Wired, error) {
	onBreakerChange := func(name string, to resilience.State) {
		if m != nil {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	chat, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}
	guarded := llm.NewGuarded(chat,
		resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{OnStateChange: onBreakerChange}),
		cfg.LLM.Timeout,
	)

	embedder, err := vector.NewOpenAIEmbedder(cfg.LLM)
	if err != nil {
		return nil, err
	}
	cached, err := vector.NewCachedEmbedder(embedder, cfg.Vector.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	dense := vector.NewHNSWStore(cached, vector.Options{
		M:              cfg.Vector.M,
		EfSearch:       cfg.Vector.EfSearch,
		EmbedBatchSize: cfg.Vector.EmbedBatchSize,
		EmbedWorkers:   cfg.Vector.EmbedWorkers,
	})

	mode, err := chunk.ParseMode(cfg.Corpus.ChunkingMode)
	if err != nil {
		return nil, err
	}
	splitter, err := chunk.NewSplitter(chunk.SplitterOptions{
		Mode:                 mode,
		ChunkSize:            cfg.Corpus.ChunkSize,
		ChunkOverlap:         cfg.Corpus.ChunkOverlap,
		BreakpointPercentile: cfg.Corpus.BreakpointPercentile,
		Embedder:             embedder,
	})
	if err != nil {
		return nil, err
	}

	var loader Loader
	switch cfg.Corpus.Source {
	case "postgres":
		if db == nil {
			return nil, apperrors.Configf("corpus source postgres requires postgres to be enabled")
		}
		loader = corpus.NewStore(db)
	default:
		loader = corpus.NewFileLoader(cfg.Corpus.Paths, splitter)
	}

	expMode, err := expansion.ParseMode(cfg.Retrieval.ExpansionMode)
	if err != nil {
		return nil, err
	}
	expander, err := expansion.New(expMode, guarded, cfg.LLM.Temperature)
	if err != nil {
		return nil, err
	}

	tokenizer, err := lexical.TokenizerByName(cfg.Retrieval.Tokenizer)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Dense:    dense,
		Expander: expander,
		Compressor: generation.NewCompressor(guarded, generation.CompressorOptions{
			Temperature: cfg.LLM.Temperature,
			MaxDocs:     cfg.LLM.CompressMaxDocs,
		}, m),
		Generator: generation.NewGenerator(guarded, generation.GeneratorOptions{
			Temperature:     cfg.LLM.Temperature,
			MaxContextChars: cfg.LLM.MaxContextChars,
		}, m),
		Loader:    loader,
		Tokenizer: tokenizer,
	}

	var client *rerank.Client
	if cfg.Rerank.Enabled {
		client = rerank.NewClient(cfg.Rerank,
			resilience.NewCircuitBreaker("reranker", resilience.CircuitBreakerConfig{OnStateChange: onBreakerChange}))
		deps.Reranker = rerank.New(client, m)
	}

	opts := OptionsFromConfig(cfg.Retrieval)
	if cfg.Tracing.Enabled {
		opts.TraceSampleRate = cfg.Tracing.SampleRate
	}
	p, err := New(deps, opts, m)
	if err != nil {
		return nil, fmt.Errorf("assembling pipeline: %w", err)
	}
	return &Wired{Pipeline: p, Splitter: splitter, Rerank: client}, nil
}
