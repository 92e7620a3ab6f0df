// Package lexical implements the keyword side of hybrid retrieval: a BM25
// Okapi index over an immutable corpus snapshot that scores every chunk for
// a query and selects the best-scoring candidate pool.
package lexical

import (
	"container/heap"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// Hit is a lexical candidate: the chunk's position in the corpus, the chunk
// and its raw BM25 score.
type Hit struct {
	Index int
	Chunk chunk.Chunk
	Score float64
}

// Index is safe for concurrent Score/Search calls; Refresh swaps the
// snapshot atomically.
type Index struct {
	mu       sync.RWMutex
	tokenize Tokenizer
	params   Params
	chunks   []chunk.Chunk
	model    *model
	logger   *slog.Logger
}

type Option func(*Index)

func WithTokenizer(t Tokenizer) Option {
	return func(ix *Index) { ix.tokenize = t }
}

func WithParams(p Params) Option {
	return func(ix *Index) { ix.params = p }
}

func New(opts ...Option) *Index {
	ix := &Index{
		tokenize: Whitespace,
		params:   DefaultParams(),
		logger:   slog.Default().With("component", "lexical-index"),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Build indexes chunks in the given order. Corpus order is the order of the
// slice returned by Score.
func (ix *Index) Build(chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return apperrors.ErrEmptyCorpus
	}
	docs := make([][]string, len(chunks))
	for i, c := range chunks {
		docs[i] = ix.tokenize(c.Content)
	}
	m := buildModel(docs, ix.params)
	snapshot := append([]chunk.Chunk(nil), chunks...)

	ix.mu.Lock()
	ix.chunks = snapshot
	ix.model = m
	ix.mu.Unlock()

	ix.logger.Info("lexical index built", "chunks", len(chunks), "terms", len(m.idf), "avg_doc_len", m.avgdl)
	return nil
}

// Refresh replaces the snapshot. On error the previous snapshot stays live.
func (ix *Index) Refresh(chunks []chunk.Chunk) error {
	return ix.Build(chunks)
}

// Len returns the number of chunks in the current snapshot.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Chunks returns the current snapshot. The slice must not be modified.
func (ix *Index) Chunks() []chunk.Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.chunks
}

// Score returns one BM25 score per chunk in corpus order. Before the first
// Build it returns nil.
func (ix *Index) Score(query string) []float64 {
	ix.mu.RLock()
	m := ix.model
	ix.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.scores(ix.tokenize(query))
}

// Search scores the corpus and returns the n best hits, best first, from a
// single consistent snapshot.
func (ix *Index) Search(query string, n int) []Hit {
	ix.mu.RLock()
	m, chunks := ix.model, ix.chunks
	ix.mu.RUnlock()
	if m == nil {
		return nil
	}
	scores := m.scores(ix.tokenize(query))
	top := TopN(scores, n)
	hits := make([]Hit, len(top))
	for i, idx := range top {
		hits[i] = Hit{Index: idx, Chunk: chunks[idx], Score: scores[idx]}
	}
	return hits
}

// TopN returns the indices of the n highest scores, best first. Equal
// scores are ordered by ascending index.
func TopN(scores []float64, n int) []int {
	if n <= 0 {
		return nil
	}
	h := &candidateHeap{}
	for i, s := range scores {
		heap.Push(h, candidate{index: i, score: s})
		if h.Len() > n {
			heap.Pop(h)
		}
	}
	out := make([]int, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate).index
	}
	return out
}

type candidate struct {
	index int
	score float64
}

// candidateHeap is a min-heap on rank: the root is the weakest candidate.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].index > h[j].index
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
