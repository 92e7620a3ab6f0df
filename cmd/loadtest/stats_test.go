package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsReport(t *testing.T) {
	s := NewStats()
	s.Record(outcome{latency: 100 * time.Millisecond, statusCode: 200, cacheHit: true})
	s.Record(outcome{latency: 300 * time.Millisecond, statusCode: 200, noEvidence: true})
	s.Record(outcome{latency: 50 * time.Millisecond, statusCode: 503})
	s.Record(outcome{err: errors.New("connection refused")})

	var buf bytes.Buffer
	s.WriteReport(&buf, 2*time.Second)
	out := buf.String()
	assert.Contains(t, out, "Total Requests:  4")
	assert.Contains(t, out, "Successful:      2")
	assert.Contains(t, out, "Errors:          2")
	assert.Contains(t, out, "Cache Hit Rate:  50.00%")
	assert.Contains(t, out, "No Evidence:     1")
	assert.Contains(t, out, "Max:    300ms")
	assert.Contains(t, out, "  503: 1")
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestQueryDecodesAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		w.Write([]byte(`{"num_sources":0,"degraded":true,"cache_hit":true}`))
	}))
	defer srv.Close()

	o := query(t.Context(), srv.Client(), srv.URL, "leave")
	require.NoError(t, o.err)
	assert.Equal(t, http.StatusOK, o.statusCode)
	assert.True(t, o.cacheHit)
	assert.True(t, o.degraded)
	assert.True(t, o.noEvidence)
}
