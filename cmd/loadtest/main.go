// Command loadtest drives concurrent POST /api/v1/query traffic against a
// running query service and reports throughput, latency percentiles, cache
// hit rate and how many answers were degraded or had no evidence.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-dataset configs/eval/dataset.yaml]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/evaluation"
)

var fallbackQueries = []string{
	"How many days of annual leave do employees get?",
	"What is the process for reporting a security incident?",
	"Can I carry over unused leave to next year?",
	"What expenses are reimbursable for business travel?",
	"Who approves remote work requests?",
	"How often must passwords be changed?",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the query service")
	concurrency := flag.Int("concurrency", 4, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	dataset := flag.String("dataset", "", "evaluation dataset to draw queries from")
	flag.Parse()

	queries := fallbackQueries
	if *dataset != "" {
		judgments, err := evaluation.LoadDataset(*dataset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load dataset: %v\n", err)
			os.Exit(1)
		}
		queries = queries[:0:0]
		for _, j := range judgments {
			queries = append(queries, j.Query)
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== Policy RAG Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	start := time.Now()
	stats := run(cfg)
	stats.WriteReport(os.Stdout, time.Since(start))

	if stats.Total() == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(cfg Config) *Stats {
	stats := NewStats()
	if len(cfg.Queries) == 0 {
		return stats
	}
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				o := query(ctx, client, cfg.BaseURL, cfg.Queries[i%len(cfg.Queries)])
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(o)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

type queryResponse struct {
	NumSources int  `json:"num_sources"`
	Degraded   bool `json:"degraded"`
	CacheHit   bool `json:"cache_hit"`
}

func query(ctx context.Context, client *http.Client, baseURL, q string) outcome {
	body, _ := json.Marshal(map[string]string{"query": q})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return outcome{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return outcome{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	o := outcome{statusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		var qr queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err == nil {
			o.cacheHit = qr.CacheHit
			o.degraded = qr.Degraded
			o.noEvidence = qr.NumSources == 0
		}
	}
	io.Copy(io.Discard, resp.Body)
	o.latency = time.Since(start)
	return o
}
