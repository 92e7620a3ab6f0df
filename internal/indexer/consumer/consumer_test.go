package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

type fakeRebuilder struct {
	errs    []error
	calls   int
	version uint64
}

func (f *fakeRebuilder) Rebuild(context.Context) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.version++
	return nil
}

func (f *fakeRebuilder) Snapshot() (uint64, int) { return f.version, 42 }

type fakeCache struct{ invalidated int }

func (c *fakeCache) Invalidate(context.Context) (int64, error) {
	c.invalidated++
	return 3, nil
}

type fakeTracker struct{ events []any }

func (t *fakeTracker) Track(event any) { t.events = append(t.events, event) }

func corpusEvent(t *testing.T, source string) []byte {
	t.Helper()
	data, err := json.Marshal(ingestion.CorpusUpdatedEvent{Source: source, Chunks: 4, IngestedAt: time.Now().UTC()})
	require.NoError(t, err)
	return data
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}

func TestHandleMessageRebuildsAndInvalidates(t *testing.T) {
	rb := &fakeRebuilder{}
	cache := &fakeCache{}
	tr := &fakeTracker{}
	handle := HandleMessage(rb, Options{Cache: cache, Tracker: tr, Retry: fastRetry})

	require.NoError(t, handle(context.Background(), []byte("hr.txt"), corpusEvent(t, "hr.txt")))
	assert.Equal(t, 1, rb.calls)
	assert.Equal(t, 1, cache.invalidated)
	require.Len(t, tr.events, 1)
	ev := tr.events[0].(analytics.IndexEvent)
	assert.Equal(t, analytics.EventRebuild, ev.Type)
	assert.Equal(t, uint64(1), ev.Snapshot)
	assert.Equal(t, 42, ev.Chunks)
}

func TestHandleMessageRetriesWhileBuildRuns(t *testing.T) {
	busy := fmt.Errorf("%w: index build already in progress", apperrors.ErrNotReady)
	rb := &fakeRebuilder{errs: []error{busy, busy}}
	handle := HandleMessage(rb, Options{Retry: fastRetry})

	require.NoError(t, handle(context.Background(), nil, corpusEvent(t, "a")))
	assert.Equal(t, 3, rb.calls)
}

func TestHandleMessageFailureIsNotRetriedOrCommitted(t *testing.T) {
	rb := &fakeRebuilder{errs: []error{errors.New("postgres unreachable")}}
	cache := &fakeCache{}
	handle := HandleMessage(rb, Options{Cache: cache, Retry: fastRetry})

	err := handle(context.Background(), nil, corpusEvent(t, "a"))
	assert.ErrorContains(t, err, "postgres unreachable")
	assert.Equal(t, 1, rb.calls)
	assert.Zero(t, cache.invalidated)
}

func TestHandleMessageSkipsGarbage(t *testing.T) {
	rb := &fakeRebuilder{}
	handle := HandleMessage(rb, Options{Retry: fastRetry})
	assert.NoError(t, handle(context.Background(), nil, []byte("{")))
	assert.Zero(t, rb.calls)
}
