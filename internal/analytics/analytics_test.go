package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
)

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

func (p *recordingPublisher) recorded() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestQueryEventType(t *testing.T) {
	assert.Equal(t, EventNoEvidence, QueryEventType(0, true))
	assert.Equal(t, EventDegraded, QueryEventType(3, true))
	assert.Equal(t, EventQuery, QueryEventType(3, false))

	for _, typ := range []EventType{EventQuery, EventNoEvidence, EventDegraded, EventFailed} {
		assert.True(t, typ.IsQuery(), typ)
	}
	assert.False(t, EventRebuild.IsQuery())
	assert.False(t, EventIngest.IsQuery())
}

func TestCollectorPublishesKeyedEvents(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 8)
	c.Start(context.Background())

	c.Track(QueryEvent{Type: EventQuery, QueryID: "q-1", Query: "leave"})
	c.Track(IndexEvent{Type: EventIngest, Source: "hr.txt", Chunks: 4})
	c.Close()

	events := pub.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, "q-1", events[0].Key)
	assert.Equal(t, "hr.txt", events[1].Key)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 1)
	c.Track(QueryEvent{QueryID: "a"})
	c.Track(QueryEvent{QueryID: "b"})
	c.Start(context.Background())
	c.Close()
	assert.Len(t, pub.recorded(), 1)
	assert.Equal(t, int64(1), c.Dropped())
}

func TestHandleEventAggregates(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []any{
		QueryEvent{Type: EventQuery, Query: "Leave policy", Sources: 3, LatencyMs: 100, Timestamp: now},
		QueryEvent{Type: EventQuery, Query: "leave policy ", Sources: 5, LatencyMs: 300, CacheHit: true, Timestamp: now},
		QueryEvent{Type: EventNoEvidence, Query: "parking", LatencyMs: 50, Timestamp: now},
		QueryEvent{Type: EventDegraded, Query: "vpn", Sources: 4, LatencyMs: 900, Timestamp: now},
		QueryEvent{Type: EventFailed, Query: "boom", ErrMessage: "vector index unreachable", Timestamp: now},
		IndexEvent{Type: EventIngest, Source: "hr.txt", Chunks: 12, Timestamp: now},
		IndexEvent{Type: EventRebuild, Chunks: 40, Snapshot: 2, Timestamp: now},
	}
	for _, e := range events {
		require.NoError(t, handle(ctx, nil, encode(t, e)))
	}
	require.NoError(t, handle(ctx, nil, []byte("not json")))
	require.NoError(t, handle(ctx, nil, []byte(`{"type":"unknown"}`)))

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(4), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.NoEvidenceCount)
	assert.Equal(t, int64(1), stats.DegradedCount)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(12), stats.ChunksIngested)
	assert.Equal(t, int64(1), stats.SourcesIngested)
	assert.Equal(t, int64(1), stats.Rebuilds)
	assert.InDelta(t, 270.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(100), stats.P50LatencyMs)
	assert.Equal(t, int64(900), stats.P99LatencyMs)
	assert.InDelta(t, 12.0/5, stats.AvgSources, 1e-9)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "leave policy", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "parking", Count: 1}}, stats.NoEvidenceQueries)
}

func TestPercentileAndTopN(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, int64(5), percentile([]int64{1, 2, 3, 4, 5}, 99))
	got := topN(map[string]int64{"b": 2, "a": 2, "c": 5}, 2)
	assert.Equal(t, []QueryCount{{"c", 5}, {"a", 2}}, got)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.RecordQuery(QueryEvent{Type: EventQuery, Query: "badge", LatencyMs: 10})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalQueries)
}

func TestStatsHandlerTopParam(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"badge", "leave", "leave", "vpn"} {
		agg.RecordQuery(QueryEvent{Type: EventQuery, Query: q})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []QueryCount{{"leave", 2}, {"badge", 1}}, stats.TopQueries)

	for _, bad := range []string{"0", "-1", "ten"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestCollectorPublishFailureIsLogged(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 2)
	c.Start(context.Background())
	c.Track(QueryEvent{QueryID: "x"})
	c.Close()
	assert.Empty(t, pub.recorded())
}

func TestRestoreContinuesCounters(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{
		TotalQueries:    4,
		NoEvidenceCount: 1,
		Rebuilds:        2,
		AvgSources:      2.5,
		TopQueries:      []QueryCount{{"leave", 3}},
	})
	agg.RecordQuery(QueryEvent{Type: EventQuery, Query: "Leave", Sources: 5})

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.NoEvidenceCount)
	assert.Equal(t, int64(2), stats.Rebuilds)
	assert.InDelta(t, 3.0, stats.AvgSources, 1e-9)
	assert.Equal(t, []QueryCount{{"leave", 4}}, stats.TopQueries)
}
