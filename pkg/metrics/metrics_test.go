package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersNamespacedCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.QueriesTotal.WithLabelValues("answered").Inc()
	m.CircuitBreakerState.WithLabelValues("llm").Set(1)

	expected := `
# HELP rag_queries_total Pipeline queries by outcome (answered, no_evidence, empty_query, error).
# TYPE rag_queries_total counter
rag_queries_total{outcome="answered"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rag_queries_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("llm")))

	assert.Panics(t, func() { New(reg) })
}

func TestStartServerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := StartServer(ctx, 0)
	cancel()
	<-stopped
}
