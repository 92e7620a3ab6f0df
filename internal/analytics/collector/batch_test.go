package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, event kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{event})
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestFlushPublishesBuffer(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 10, time.Hour)
	bc.Track("hr.txt", map[string]int{"chunks": 3})
	bc.Track("it.md", map[string]int{"chunks": 1})
	assert.Equal(t, 2, bc.BufferLen())

	bc.Flush(context.Background())
	assert.Zero(t, bc.BufferLen())
	assert.Equal(t, 2, pub.count())

	bc.Flush(context.Background())
	assert.Len(t, pub.batches, 1)
}

func TestFullBatchTriggersFlush(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track("a", 1)
	bc.Track("b", 2)
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	bc.Track("c", 3)
	cancel()
	bc.Close()
	assert.Equal(t, 3, pub.count())
}

func TestFailedFlushRequeuesBounded(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	bc := NewBatchCollector(pub, 2, time.Hour)
	for i := range 8 {
		bc.Track("k", i)
	}
	bc.Flush(context.Background())
	assert.Equal(t, 6, bc.BufferLen())
}

func TestFlushSplitsIntoBatches(t *testing.T) {
	pub := &recordingPublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	for i := range 5 {
		bc.Track("k", i)
	}
	bc.Flush(context.Background())

	assert.Len(t, pub.batches, 3)
	assert.Equal(t, Stats{Published: 5}, bc.Stats())

	pub.err = errors.New("broker down")
	for i := range 8 {
		bc.Track("k", i)
	}
	bc.Flush(context.Background())
	assert.Equal(t, Stats{Published: 5, Dropped: 2}, bc.Stats())
}
