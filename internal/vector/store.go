// Package vector is the dense side of hybrid retrieval. Store is the
// collaborator contract the retriever consumes; HNSWStore implements it with
// an in-memory coder/hnsw graph over embeddings from an OpenAI-compatible
// endpoint. The index is rebuilt from the corpus on every start and is not
// persisted.
package vector

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
)

// Match is a nearest-neighbour hit. Smaller Distance means more similar.
type Match struct {
	Chunk    chunk.Chunk
	Distance float64
}

// Store answers nearest-neighbour queries over the corpus snapshot.
type Store interface {
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]Match, error)
}
