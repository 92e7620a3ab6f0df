// Package consumer reads corpus.updated events from Kafka and rebuilds the
// query pipeline's indexes from the chunk store, then drops cached results
// of the previous snapshot.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

// Rebuilder is the slice of pipeline.Pipeline the consumer drives.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
	Snapshot() (version uint64, chunks int)
}

// Invalidator drops cached results.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Tracker records analytics events.
type Tracker interface {
	Track(event any)
}

// Options are the optional collaborators of HandleMessage. A rebuild that
// collides with one already running is retried per Retry.
type Options struct {
	Cache   Invalidator
	Tracker Tracker
	Retry   resilience.RetryConfig
}

type RebuildConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *RebuildConsumer {
	return &RebuildConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "rebuild-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (rc *RebuildConsumer) Start(ctx context.Context) error {
	rc.logger.Info("rebuild consumer starting")
	return rc.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that rebuilds on every
// corpus.updated event. Undecodable messages are skipped; a failed rebuild
// leaves the message uncommitted.
func HandleMessage(rebuilder Rebuilder, opts Options) kafka.MessageHandler {
	logger := slog.Default().With("component", "rebuild-consumer")
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = func(err error) bool { return errors.Is(err, apperrors.ErrNotReady) }
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CorpusUpdatedEvent](value)
		if err != nil {
			logger.Error("failed to decode corpus event", "error", err, "key", string(key))
			return nil
		}

		start := time.Now()
		err = resilience.Retry(ctx, "rebuild", opts.Retry, func() error {
			return rebuilder.Rebuild(ctx)
		})
		if err != nil {
			return fmt.Errorf("rebuilding after update of %s: %w", event.Source, err)
		}

		version, chunks := rebuilder.Snapshot()
		if opts.Cache != nil {
			if _, err := opts.Cache.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation failed after rebuild", "error", err)
			}
		}
		if opts.Tracker != nil {
			opts.Tracker.Track(analytics.IndexEvent{
				Type:      analytics.EventRebuild,
				Source:    event.Source,
				Chunks:    chunks,
				Snapshot:  version,
				LatencyMs: time.Since(start).Milliseconds(),
				Timestamp: time.Now().UTC(),
			})
		}
		logger.Info("pipeline rebuilt",
			"source", event.Source,
			"snapshot_version", version,
			"chunks", chunks,
		)
		return nil
	}
}
