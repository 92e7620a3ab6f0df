package evaluation

import (
	"fmt"
	"io"
	"strings"
)

var rule = strings.Repeat("=", 80)

// WriteText prints r in the evaluation runner's console format. With
// inspect set, every retrieved UID is listed with a content preview.
func WriteText(w io.Writer, r *Report, inspect bool) error {
	var b strings.Builder
	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n%s\nQuery: %s\n", rule, res.Query)
		if inspect {
			for _, h := range res.Hits {
				mark := ""
				if h.Relevant {
					mark = " (relevant)"
				}
				fmt.Fprintf(&b, "\nUID: %s%s\nCONTENT PREVIEW:\n%s\n%s\n", h.UID, mark, h.Preview, strings.Repeat("-", 80))
			}
		}
		fmt.Fprintf(&b, "Recall@%d: %.3f\n", r.K, res.Recall)
		fmt.Fprintf(&b, "Precision@%d: %.3f\n", r.K, res.Precision)
		fmt.Fprintf(&b, "MRR: %.3f\n", res.MRR)
		fmt.Fprintf(&b, "Latency: %.2fs\n", res.Latency.Seconds())
	}
	fmt.Fprintf(&b, "\n===== AGGREGATED RESULTS =====\n")
	fmt.Fprintf(&b, "Mean Recall@%d: %.3f\n", r.K, r.MeanRecall)
	fmt.Fprintf(&b, "Mean Precision@%d: %.3f\n", r.K, r.MeanPrecision)
	fmt.Fprintf(&b, "Mean MRR: %.3f\n", r.MeanMRR)
	fmt.Fprintf(&b, "Mean Latency: %.2fs\n", r.MeanLatency.Seconds())

	_, err := io.WriteString(w, b.String())
	return err
}
