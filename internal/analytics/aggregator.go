package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries      int64        `json:"total_queries"`
	NoEvidenceCount   int64        `json:"no_evidence_count"`
	DegradedCount     int64        `json:"degraded_count"`
	ErrorCount        int64        `json:"error_count"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ChunksIngested    int64        `json:"chunks_ingested"`
	SourcesIngested   int64        `json:"sources_ingested"`
	Rebuilds          int64        `json:"rebuilds"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	AvgSources        float64      `json:"avg_sources"`
	TopQueries        []QueryCount `json:"top_queries"`
	NoEvidenceQueries []QueryCount `json:"no_evidence_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalQueries      atomic.Int64
	noEvidence        atomic.Int64
	degraded          atomic.Int64
	errors            atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	chunksIngested    atomic.Int64
	sourcesIngested   atomic.Int64
	rebuilds          atomic.Int64
	totalSources      atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	noEvidenceQueries map[string]int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		noEvidenceQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events from consumer until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context, consumer *kafka.Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Start(ctx)
}

// HandleEvent decodes a published event by its type field. Undecodable or
// unknown events are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var envelope struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch {
		case envelope.Type.IsQuery():
			event, err := kafka.DecodeJSON[QueryEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode query event", "error", err)
				return nil
			}
			agg.RecordQuery(event)
		case envelope.Type == EventIngest || envelope.Type == EventRebuild:
			event, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndex(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", envelope.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordQuery(event QueryEvent) {
	a.totalQueries.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	switch {
	case event.Type == EventFailed || event.ErrMessage != "":
		a.errors.Add(1)
	case event.Type == EventNoEvidence:
		a.noEvidence.Add(1)
	case event.Type == EventDegraded:
		a.degraded.Add(1)
	}
	a.totalSources.Add(int64(event.Sources))

	query := strings.ToLower(strings.TrimSpace(event.Query))
	a.mu.Lock()
	if len(a.latencies) == maxLatencySamples {
		a.latencies = slices.Delete(a.latencies, 0, 1)
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	if query != "" {
		a.queryCounts[query]++
		if event.Type == EventNoEvidence && event.ErrMessage == "" {
			a.noEvidenceQueries[query]++
		}
	}
	a.mu.Unlock()
}

// Restore adds the counters of a persisted snapshot, so totals continue
// across restarts. Latency percentiles start over.
func (a *Aggregator) Restore(base AggregatedStats) {
	a.totalQueries.Add(base.TotalQueries)
	a.noEvidence.Add(base.NoEvidenceCount)
	a.degraded.Add(base.DegradedCount)
	a.errors.Add(base.ErrorCount)
	a.cacheHits.Add(base.CacheHits)
	a.cacheMisses.Add(base.CacheMisses)
	a.chunksIngested.Add(base.ChunksIngested)
	a.sourcesIngested.Add(base.SourcesIngested)
	a.rebuilds.Add(base.Rebuilds)
	a.totalSources.Add(int64(base.AvgSources * float64(base.TotalQueries)))

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, qc := range base.TopQueries {
		a.queryCounts[qc.Query] += qc.Count
	}
	for _, qc := range base.NoEvidenceQueries {
		a.noEvidenceQueries[qc.Query] += qc.Count
	}
}

func (a *Aggregator) RecordIndex(event IndexEvent) {
	switch event.Type {
	case EventIngest:
		a.sourcesIngested.Add(1)
		a.chunksIngested.Add(int64(event.Chunks))
	case EventRebuild:
		a.rebuilds.Add(1)
	}
}

// defaultTopN is the length of the query leaderboards returned by Stats.
const defaultTopN = 10

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopN)
}

// StatsTop is Stats with leaderboards of at most n queries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries.Load(),
		NoEvidenceCount: a.noEvidence.Load(),
		DegradedCount:   a.degraded.Load(),
		ErrorCount:      a.errors.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ChunksIngested:  a.chunksIngested.Load(),
		SourcesIngested: a.sourcesIngested.Load(),
		Rebuilds:        a.rebuilds.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if stats.TotalQueries > 0 {
		stats.AvgSources = float64(a.totalSources.Load()) / float64(stats.TotalQueries)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.NoEvidenceQueries = topN(a.noEvidenceQueries, n)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
