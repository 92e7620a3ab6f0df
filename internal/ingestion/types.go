// Package ingestion defines the request/response types and the Kafka event
// schema of the policy document ingestion service.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by POST /api/v1/chunks. Exactly
// one of Text and Chunks is set: Text is a whole document (pages separated
// by form feeds) that the service splits, Chunks are stored as given.
type IngestRequest struct {
	Source         string       `json:"source"`
	Domain         string       `json:"domain"`
	Text           string       `json:"text"`
	Chunks         []ChunkInput `json:"chunks"`
	IdempotencyKey string       `json:"idempotency_key"`
}

// ChunkInput is one pre-chunked passage. Page is omitted for documents
// without page structure.
type ChunkInput struct {
	Content string `json:"content"`
	Page    *int   `json:"page,omitempty"`
}

const (
	StatusStored    = "STORED"
	StatusDuplicate = "DUPLICATE"
)

// IngestResponse is returned once the source has been stored.
type IngestResponse struct {
	Source string `json:"source"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// CorpusUpdatedEvent is published after a source is stored. Consumers
// rebuild their indexes from the chunk store.
type CorpusUpdatedEvent struct {
	Source         string    `json:"source"`
	Chunks         int       `json:"chunks"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
}
