// Package collector buffers ingestion analytics events and publishes them
// to Kafka in batches.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
)

// Stats counts events since the collector was created.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// BatchCollector publishes when batchSize events are pending or every
// flushInterval. After a failed write the unsent events stay pending,
// bounded to three batches; the oldest are dropped beyond that.
type BatchCollector struct {
	publisher     kafka.Publisher
	batchSize     int
	maxPending    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event
	stats   Stats

	full chan struct{}
	done chan struct{}
}

func NewBatchCollector(publisher kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		batchSize:     batchSize,
		maxPending:    3 * batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		full:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start flushes in the background until ctx is cancelled, then makes a
// last flush bounded to five seconds.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-bc.full:
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(final)
				cancel()
				return
			}
			bc.Flush(ctx)
		}
	}()
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.flushInterval)
}

// Track queues value under key, usually the ingested source.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: key, Value: value})
	full := len(bc.pending) >= bc.batchSize
	bc.mu.Unlock()
	if full {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Close waits for the loop started by Start to finish its last flush.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

func (bc *BatchCollector) Stats() Stats {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.stats
}

// Flush writes everything pending, batchSize events per write. It stops
// at the first failed write.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.mu.Lock()
	todo := bc.pending
	bc.pending = nil
	bc.mu.Unlock()

	for len(todo) > 0 {
		batch := todo[:min(bc.batchSize, len(todo))]
		if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
			bc.logger.Error("batch flush failed", "events", len(todo), "error", err)
			bc.restore(todo)
			return
		}
		todo = todo[len(batch):]
		bc.mu.Lock()
		bc.stats.Published += int64(len(batch))
		bc.mu.Unlock()
	}
}

// restore puts unsent ahead of events tracked during the flush.
func (bc *BatchCollector) restore(unsent []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pending = append(unsent, bc.pending...)
	if over := len(bc.pending) - bc.maxPending; over > 0 {
		bc.pending = bc.pending[over:]
		bc.stats.Dropped += int64(over)
		bc.logger.Warn("pending analytics events over limit, oldest dropped", "dropped", over)
	}
}
