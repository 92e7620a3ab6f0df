// Package publisher turns ingestion requests into stored chunks and
// announces each stored source on the corpus.updated topic.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

// ChunkStore is the persistence surface of corpus.Store.
type ChunkStore interface {
	ReplaceSource(ctx context.Context, source string, chunks []chunk.Chunk, idempotencyKey string) (int, error)
	FindIngest(ctx context.Context, idempotencyKey string) (*corpus.IngestRecord, error)
}

// Tracker buffers analytics events.
type Tracker interface {
	Track(key string, value any)
}

type Publisher struct {
	store    ChunkStore
	splitter chunk.Splitter
	producer kafka.Publisher
	tracker  Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New wires a Publisher. tracker and m may be nil.
func New(store ChunkStore, splitter chunk.Splitter, producer kafka.Publisher, tracker Tracker, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		splitter: splitter,
		producer: producer,
		tracker:  tracker,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the chunks of req.Source, replacing any earlier version,
// and publishes a CorpusUpdatedEvent. A repeated idempotency key returns
// the original outcome with StatusDuplicate. A publish failure is logged
// but does not fail the request: the chunks are stored and the next
// rebuild picks them up.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	start := time.Now()
	source := strings.TrimSpace(req.Source)
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindIngest(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"source", existing.Source,
			)
			return &ingestion.IngestResponse{Source: existing.Source, Status: ingestion.StatusDuplicate, Chunks: existing.Chunks}, nil
		}
	}

	chunks, err := p.chunks(ctx, source, req)
	if err != nil {
		return nil, err
	}
	written, err := p.store.ReplaceSource(ctx, source, chunks, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", source, err)
	}
	if p.metrics != nil {
		p.metrics.ChunksIngestedTotal.Add(float64(written))
	}

	now := time.Now().UTC()
	event := kafka.Event{
		Key: source,
		Value: ingestion.CorpusUpdatedEvent{
			Source:         source,
			Chunks:         written,
			IdempotencyKey: req.IdempotencyKey,
			IngestedAt:     now,
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish corpus update, source waits for the next rebuild",
			"source", source,
			"error", err,
		)
	}
	if p.tracker != nil {
		p.tracker.Track(source, analytics.IndexEvent{
			Type:      analytics.EventIngest,
			Source:    source,
			Chunks:    written,
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: now,
		})
	}
	return &ingestion.IngestResponse{Source: source, Status: ingestion.StatusStored, Chunks: written}, nil
}

// chunks splits req.Text page by page, or takes req.Chunks verbatim.
func (p *Publisher) chunks(ctx context.Context, source string, req *ingestion.IngestRequest) ([]chunk.Chunk, error) {
	domain := strings.TrimSpace(req.Domain)
	var out []chunk.Chunk
	if strings.TrimSpace(req.Text) != "" {
		split, err := p.splitter.Split(ctx, corpus.Pages(req.Text, source, domain))
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", source, err)
		}
		out = split
	} else {
		out = make([]chunk.Chunk, 0, len(req.Chunks))
		for _, in := range req.Chunks {
			c := chunk.Chunk{Content: in.Content, Metadata: chunk.Metadata{Source: source, Page: in.Page, Domain: domain}}
			out = append(out, c)
		}
	}
	valid, err := chunk.Validate(out)
	if errors.Is(err, apperrors.ErrEmptyCorpus) {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document contains no usable text")
	}
	return valid, err
}
