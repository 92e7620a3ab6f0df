package retrieval

import "slices"

// MinMax rescales scores to [0,1]. When every score is equal (including a
// single score) the input is returned unchanged and degenerate is true;
// this is a warning condition, not an error. An empty input is not
// degenerate.
func MinMax(scores []float64) (normalized []float64, degenerate bool) {
	if len(scores) == 0 {
		return []float64{}, false
	}
	lo, hi := slices.Min(scores), slices.Max(scores)
	if hi == lo {
		return slices.Clone(scores), true
	}
	out := make([]float64, len(scores))
	span := hi - lo
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out, false
}

// DistanceToSimilarity maps a non-negative distance to (0,1], larger
// meaning more similar.
func DistanceToSimilarity(d float64) float64 {
	return 1 / (1 + d)
}
