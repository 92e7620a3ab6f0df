package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

type memStore struct {
	sources map[string][]chunk.Chunk
	keys    map[string]*corpus.IngestRecord
	err     error
}

func newMemStore() *memStore {
	return &memStore{sources: map[string][]chunk.Chunk{}, keys: map[string]*corpus.IngestRecord{}}
}

func (s *memStore) ReplaceSource(_ context.Context, source string, chunks []chunk.Chunk, key string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.sources[source] = chunks
	if key != "" {
		s.keys[key] = &corpus.IngestRecord{Source: source, Chunks: len(chunks)}
	}
	return len(chunks), nil
}

func (s *memStore) FindIngest(_ context.Context, key string) (*corpus.IngestRecord, error) {
	return s.keys[key], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
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
	p.events = append(p.events, events...)
	return nil
}

type recordingTracker struct {
	values []any
}

func (t *recordingTracker) Track(_ string, value any) { t.values = append(t.values, value) }

func newPublisher(store ChunkStore, producer kafka.Publisher) (*Publisher, *recordingTracker, *metrics.Metrics) {
	tr := &recordingTracker{}
	m := metrics.NewUnregistered()
	return New(store, chunk.NewRecursiveSplitter(40, 0), producer, tr, m), tr, m
}

func TestIngestTextSplitsPages(t *testing.T) {
	store := newMemStore()
	prod := &recordingPublisher{}
	p, tr, m := newPublisher(store, prod)

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{
		Source: " hr/leave.pdf ",
		Domain: "HR",
		Text:   "Annual leave is twenty days per year.\f\fSick leave needs a doctor's note after three days.",
	})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusStored, resp.Status)
	assert.Equal(t, "hr/leave.pdf", resp.Source)

	stored := store.sources["hr/leave.pdf"]
	require.Len(t, stored, resp.Chunks)
	require.GreaterOrEqual(t, len(stored), 2)
	assert.Equal(t, "0", stored[0].Metadata.PageLabel())
	assert.Equal(t, "2", stored[len(stored)-1].Metadata.PageLabel())
	for _, c := range stored {
		assert.Equal(t, "HR", c.Metadata.Domain)
		assert.LessOrEqual(t, len([]rune(c.Content)), 40)
	}

	require.Len(t, prod.events, 1)
	assert.Equal(t, "hr/leave.pdf", prod.events[0].Key)
	ev := prod.events[0].Value.(ingestion.CorpusUpdatedEvent)
	assert.Equal(t, resp.Chunks, ev.Chunks)

	require.Len(t, tr.values, 1)
	assert.Equal(t, analytics.EventIngest, tr.values[0].(analytics.IndexEvent).Type)
	assert.Equal(t, float64(resp.Chunks), testutil.ToFloat64(m.ChunksIngestedTotal))
}

func TestIngestPrechunked(t *testing.T) {
	store := newMemStore()
	p, _, _ := newPublisher(store, &recordingPublisher{})
	page := 3
	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{
		Source: "it.md",
		Chunks: []ingestion.ChunkInput{{Content: "VPN is mandatory off-site.", Page: &page}, {Content: "Rotate passwords yearly."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Chunks)
	assert.Equal(t, "3", store.sources["it.md"][0].Metadata.PageLabel())
	assert.Nil(t, store.sources["it.md"][1].Metadata.Page)
}

func TestIngestDuplicateKey(t *testing.T) {
	store := newMemStore()
	prod := &recordingPublisher{}
	p, _, _ := newPublisher(store, prod)
	req := &ingestion.IngestRequest{Source: "a.txt", Text: "Badges must be worn.", IdempotencyKey: "req-1"}

	first, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ingestion.StatusDuplicate, second.Status)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Len(t, prod.events, 1)
}

func TestIngestBlankDocumentIsInvalid(t *testing.T) {
	p, _, _ := newPublisher(newMemStore(), &recordingPublisher{})
	_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Source: "a.txt", Text: "™ ™ ©"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
}

func TestIngestStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
	prod := &recordingPublisher{}
	p, _, _ := newPublisher(store, prod)

	_, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Source: "a.txt", Text: "x y z"})
	assert.ErrorIs(t, err, apperrors.ErrIdempotencyConflict)
	assert.Equal(t, 409, apperrors.HTTPStatusCode(err))
	assert.Empty(t, prod.events)
}

func TestIngestPublishFailureStillStores(t *testing.T) {
	store := newMemStore()
	p, _, _ := newPublisher(store, &recordingPublisher{err: errors.New("broker down")})

	resp, err := p.Ingest(context.Background(), &ingestion.IngestRequest{Source: "a.txt", Text: "Expenses need receipts."})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusStored, resp.Status)
	assert.NotEmpty(t, store.sources["a.txt"])
}
