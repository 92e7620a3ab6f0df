package vector

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

// Options tunes the graph and the build-time embedding fan-out.
type Options struct {
	M              int
	EfSearch       int
	EmbedBatchSize int
	EmbedWorkers   int
	Retry          resilience.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.M <= 0 {
		o.M = 16
	}
	if o.EfSearch <= 0 {
		o.EfSearch = 64
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 32
	}
	if o.EmbedWorkers <= 0 {
		o.EmbedWorkers = 4
	}
	return o
}

// HNSWStore keys graph nodes by corpus position.
type HNSWStore struct {
	mu       sync.RWMutex
	embedder Embedder
	opts     Options
	graph    *hnsw.Graph[uint64]
	chunks   []chunk.Chunk
	logger   *slog.Logger
}

func NewHNSWStore(embedder Embedder, opts Options) *HNSWStore {
	return &HNSWStore{
		embedder: embedder,
		opts:     opts.withDefaults(),
		logger:   slog.Default().With("component", "hnsw-store"),
	}
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.opts.M
	g.EfSearch = s.opts.EfSearch
	g.Ml = 0.25
	return g
}

// Build embeds every chunk and replaces the graph. It blocks until all
// batches finish; the previous graph keeps serving until the swap.
func (s *HNSWStore) Build(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return apperrors.ErrEmptyCorpus
	}
	start := time.Now()
	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	dim := len(vectors[0])
	g := s.newGraph()
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return apperrors.Collaborator("embedder",
				fmt.Errorf("chunk %d has %d dimensions, expected %d", i, len(v), dim))
		}
		g.Add(hnsw.MakeNode(uint64(i), v))
	}
	snapshot := append([]chunk.Chunk(nil), chunks...)

	s.mu.Lock()
	s.graph = g
	s.chunks = snapshot
	s.mu.Unlock()

	s.logger.Info("vector index built",
		"chunks", len(chunks),
		"dimensions", dim,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *HNSWStore) embedAll(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	pool, err := ants.NewPool(s.opts.EmbedWorkers)
	if err != nil {
		return nil, fmt.Errorf("creating embedding pool: %w", err)
	}
	defer pool.Release()

	vectors := make([][]float32, len(chunks))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) { errOnce.Do(func() { firstErr = err }) }

	for lo := 0; lo < len(chunks); lo += s.opts.EmbedBatchSize {
		hi := min(lo+s.opts.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Content)
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			var batch [][]float32
			err := resilience.Retry(ctx, "embed-batch", s.opts.Retry, func() error {
				var err error
				batch, err = s.embedder.EmbedDocuments(ctx, texts)
				return err
			})
			if err == nil && len(batch) != len(texts) {
				err = fmt.Errorf("got %d embeddings for %d chunks", len(batch), len(texts))
			}
			if err != nil {
				fail(apperrors.Collaborator("embedder", err))
				return
			}
			copy(vectors[lo:hi], batch)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submitting embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// SimilaritySearchWithScore returns up to k nearest chunks by cosine
// distance, nearest first. An unbuilt store returns no matches.
func (s *HNSWStore) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]Match, error) {
	s.mu.RLock()
	g, chunks := s.graph, s.chunks
	s.mu.RUnlock()
	if g == nil || g.Len() == 0 || k <= 0 {
		return nil, nil
	}

	q, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.Collaborator("embedder", err)
	}

	nodes := g.Search(q, k)
	matches := make([]Match, 0, len(nodes))
	keys := make([]uint64, 0, len(nodes))
	for _, n := range nodes {
		if int(n.Key) >= len(chunks) {
			continue
		}
		matches = append(matches, Match{
			Chunk:    chunks[n.Key],
			Distance: float64(g.Distance(q, n.Value)),
		})
		keys = append(keys, n.Key)
	}
	order := make([]int, len(matches))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(matches[a].Distance, matches[b].Distance); c != 0 {
			return c
		}
		return cmp.Compare(keys[a], keys[b])
	})
	sorted := make([]Match, len(matches))
	for i, idx := range order {
		sorted[i] = matches[idx]
	}
	return sorted, nil
}

// Len returns the number of indexed chunks.
func (s *HNSWStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
