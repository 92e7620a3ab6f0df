package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
)

// maxPublishBatch caps how many queued events go out in one write.
const maxPublishBatch = 64

// Collector publishes events from the query path in the background. Track
// never blocks; when the queue is full the event is dropped and counted.
type Collector struct {
	publisher kafka.Publisher
	queue     chan kafka.Event
	dropped   atomic.Int64
	logger    *slog.Logger
	done      chan struct{}
}

func NewCollector(publisher kafka.Publisher, queueSize int) *Collector {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &Collector{
		publisher: publisher,
		queue:     make(chan kafka.Event, queueSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start runs the publish loop until Close is called or ctx ends. Events
// still queued when ctx ends are published with a fresh context.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.queue:
				if !ok {
					return
				}
				c.publish(ctx, c.batchFrom(event))
			case <-ctx.Done():
				for {
					select {
					case event, ok := <-c.queue:
						if !ok {
							return
						}
						c.publish(context.Background(), c.batchFrom(event))
					default:
						return
					}
				}
			}
		}
	}()
	c.logger.Info("analytics collector started", "queue_size", cap(c.queue))
}

// Track queues a QueryEvent or IndexEvent for publishing.
func (c *Collector) Track(event any) {
	select {
	case c.queue <- kafka.Event{Key: eventKey(event), Value: event}:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

// Dropped reports how many events Track discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain. Track
// must not be called after Close.
func (c *Collector) Close() {
	close(c.queue)
	<-c.done
}

// batchFrom returns first plus whatever else is already queued, up to
// maxPublishBatch events.
func (c *Collector) batchFrom(first kafka.Event) []kafka.Event {
	batch := []kafka.Event{first}
	for len(batch) < maxPublishBatch {
		select {
		case event, ok := <-c.queue:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (c *Collector) publish(ctx context.Context, batch []kafka.Event) {
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "events", len(batch), "error", err)
	}
}

// eventKey keeps the events of one query, or one source, on one partition.
func eventKey(event any) string {
	switch e := event.(type) {
	case QueryEvent:
		return e.QueryID
	case IndexEvent:
		return e.Source
	default:
		return "analytics"
	}
}
