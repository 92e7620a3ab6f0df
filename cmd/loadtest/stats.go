package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// outcome is what one query request produced.
type outcome struct {
	latency    time.Duration
	statusCode int
	err        error
	cacheHit   bool
	degraded   bool
	noEvidence bool
}

type Stats struct {
	mu          sync.Mutex
	total       int64
	success     int64
	errors      int64
	cacheHits   int64
	degraded    int64
	noEvidence  int64
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if o.err != nil {
		s.errors++
		return
	}
	s.statusCodes[o.statusCode]++
	s.latencies = append(s.latencies, o.latency)
	if o.statusCode < 200 || o.statusCode >= 300 {
		s.errors++
		return
	}
	s.success++
	if o.cacheHit {
		s.cacheHits++
	}
	if o.degraded {
		s.degraded++
	}
	if o.noEvidence {
		s.noEvidence++
	}
}

func (s *Stats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// WriteReport prints the run summary for a test that lasted elapsed.
func (s *Stats) WriteReport(w io.Writer, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/elapsed.Seconds())
	}
	if s.success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits)/float64(s.success)*100)
		fmt.Fprintf(w, "Degraded:        %d\n", s.degraded)
		fmt.Fprintf(w, "No Evidence:     %d\n", s.noEvidence)
	}

	if len(s.latencies) > 0 {
		sorted := slices.Clone(s.latencies)
		slices.Sort(sorted)
		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sorted[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(sorted)))
		fmt.Fprintf(w, "P50:    %s\n", percentile(sorted, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(sorted, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(sorted, 99))
		fmt.Fprintf(w, "Max:    %s\n", sorted[len(sorted)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
