package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader replays msgs, then blocks until the context ends.
type scriptedReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs int
	committed []int64
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker not available")
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &scriptedReader{
		fetchErrs: 1,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{"source":"hr.txt"}`)},
			{Offset: 2, Value: []byte("poison")},
			{Offset: 3, Value: []byte(`{"source":"it.txt"}`)},
		},
	}
	var mu sync.Mutex
	var seen []string
	c := newConsumer(r, "corpus.updated", func(_ context.Context, _ []byte, value []byte) error {
		event, err := DecodeJSON[struct {
			Source string `json:"source"`
		}](value)
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, event.Source)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return c.Stats().Committed == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"hr.txt", "it.txt"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
	assert.Equal(t, ConsumerStats{Committed: 2, Failed: 1}, c.Stats())
	assert.True(t, r.closed)
}

func TestEncodeKeysMessages(t *testing.T) {
	msgs, err := encode([]Event{{Key: "q-1", Value: map[string]int{"sources": 2}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "q-1", string(msgs[0].Key))
	assert.JSONEq(t, `{"sources":2}`, string(msgs[0].Value))
	assert.Equal(t, "application/json", string(msgs[0].Headers[0].Value))

	_, err = encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}
