package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
)

// Retriever is the retrieval path under evaluation.
type Retriever interface {
	RetrieveForEvaluation(ctx context.Context, query string, k int) ([]chunk.Scored, error)
}

// Hit is one retrieved chunk as recorded in a report.
type Hit struct {
	UID      string  `json:"uid"`
	Score    float64 `json:"score"`
	Relevant bool    `json:"relevant"`
	Preview  string  `json:"preview"`
}

// QueryResult holds the metrics for one judgment.
type QueryResult struct {
	Query     string        `json:"query"`
	Recall    float64       `json:"recall"`
	Precision float64       `json:"precision"`
	MRR       float64       `json:"mrr"`
	Latency   time.Duration `json:"latency_ns"`
	Hits      []Hit         `json:"hits"`
}

// Report aggregates a harness run.
type Report struct {
	K             int           `json:"k"`
	Results       []QueryResult `json:"results"`
	MeanRecall    float64       `json:"mean_recall"`
	MeanPrecision float64       `json:"mean_precision"`
	MeanMRR       float64       `json:"mean_mrr"`
	MeanLatency   time.Duration `json:"mean_latency_ns"`
}

const previewRunes = 400

// Harness runs a dataset through a Retriever.
type Harness struct {
	retriever Retriever
	k         int
	logger    *slog.Logger
}

func NewHarness(r Retriever, k int) *Harness {
	if k < 1 {
		k = 5
	}
	return &Harness{
		retriever: r,
		k:         k,
		logger:    slog.Default().With("component", "evaluation"),
	}
}

// Run evaluates every judgment in order. A retrieval failure aborts the
// run.
func (h *Harness) Run(ctx context.Context, judgments []Judgment) (*Report, error) {
	report := &Report{K: h.k, Results: make([]QueryResult, 0, len(judgments))}
	var latency time.Duration

	for _, j := range judgments {
		start := time.Now()
		retrieved, err := h.retriever.RetrieveForEvaluation(ctx, j.Query, h.k)
		elapsed := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("evaluating %q: %w", j.Query, err)
		}

		res := QueryResult{
			Query:     j.Query,
			Recall:    RecallAtK(retrieved, j.RelevantUIDs, h.k),
			Precision: PrecisionAtK(retrieved, j.RelevantUIDs, h.k),
			MRR:       MRR(retrieved, j.RelevantUIDs),
			Latency:   elapsed,
			Hits:      make([]Hit, len(retrieved)),
		}
		for i, s := range retrieved {
			uid := s.UID()
			res.Hits[i] = Hit{
				UID:      uid,
				Score:    s.Score,
				Relevant: j.RelevantUIDs.Has(uid),
				Preview:  preview(s.Content),
			}
		}
		h.logger.Debug("evaluated query",
			"query", j.Query,
			"recall", res.Recall,
			"precision", res.Precision,
			"mrr", res.MRR,
			"latency_ms", elapsed.Milliseconds(),
		)

		report.Results = append(report.Results, res)
		report.MeanRecall += res.Recall
		report.MeanPrecision += res.Precision
		report.MeanMRR += res.MRR
		latency += elapsed
	}

	if n := len(report.Results); n > 0 {
		report.MeanRecall /= float64(n)
		report.MeanPrecision /= float64(n)
		report.MeanMRR /= float64(n)
		report.MeanLatency = latency / time.Duration(n)
	}
	return report, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes])
}
