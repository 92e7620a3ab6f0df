package vector

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
)

// Embedder produces dense vectors. It is satisfied by langchaingo's
// embeddings.Embedder.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewOpenAIEmbedder returns an embedder for an OpenAI-compatible endpoint
// such as a local Ollama server.
func NewOpenAIEmbedder(cfg config.LLMConfig) (Embedder, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return e, nil
}

// CachedEmbedder memoises query embeddings in an LRU. Document embeddings
// pass through uncached.
type CachedEmbedder struct {
	next   Embedder
	cache  *lru.Cache[string, []float32]
	logger *slog.Logger
}

func NewCachedEmbedder(next Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating query embedding cache: %w", err)
	}
	return &CachedEmbedder{
		next:   next,
		cache:  c,
		logger: slog.Default().With("component", "embedding-cache"),
	}, nil
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedDocuments(ctx, texts)
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// Purge drops every cached query vector. Call it when the embedding model
// changes.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
	c.logger.Debug("query embedding cache purged")
}
