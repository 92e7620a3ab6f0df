package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

// Client calls a cross-encoder scoring service over HTTP:
//
//	POST {endpoint}/rerank  {"query", "documents", "model"}
//	  -> {"results": [{"index", "score"}]}
//
// Documents are sent in batches of BatchSize, one request per distinct
// query within a batch. Calls go through a circuit breaker.
type Client struct {
	http      *http.Client
	endpoint  string
	model     string
	batchSize int
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

var _ Model = (*Client)(nil)

func NewClient(cfg config.RerankConfig, breaker *resilience.CircuitBreaker) *Client {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("reranker", resilience.CircuitBreakerConfig{})
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		batchSize: batch,
		breaker:   breaker,
		logger:    slog.Default().With("component", "rerank-client"),
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Predict implements Model.
func (c *Client) Predict(ctx context.Context, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for lo := 0; lo < len(pairs); lo += c.batchSize {
		hi := min(lo+c.batchSize, len(pairs))
		if err := c.predictBatch(ctx, pairs[lo:hi], scores[lo:hi]); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func (c *Client) predictBatch(ctx context.Context, pairs []Pair, out []float64) error {
	// Group positions by query so each request carries a single query.
	byQuery := make(map[string][]int)
	var order []string
	for i, p := range pairs {
		if _, ok := byQuery[p.Query]; !ok {
			order = append(order, p.Query)
		}
		byQuery[p.Query] = append(byQuery[p.Query], i)
	}
	for _, q := range order {
		positions := byQuery[q]
		docs := make([]string, len(positions))
		for j, pos := range positions {
			docs[j] = pairs[pos].Document
		}
		var scores []float64
		err := c.breaker.Execute(func() error {
			var err error
			scores, err = c.post(ctx, q, docs)
			return err
		})
		if err != nil {
			return err
		}
		for j, pos := range positions {
			out[pos] = scores[j]
		}
		c.logger.Debug("rerank batch scored", "documents", len(docs))
	}
	return nil
}

func (c *Client) post(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for document %d", i)
		}
	}
	return scores, nil
}

// Ping checks GET {endpoint}/health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to rerank service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rerank service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
