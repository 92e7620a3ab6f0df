// Package evaluation measures retrieval quality against a fixed set of
// relevance judgments. The metric functions are pure: they score an
// already-retrieved list and never trigger retrieval themselves.
package evaluation

import "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"

// UIDSet is a set of chunk UIDs.
type UIDSet map[string]struct{}

// NewUIDSet builds a set from uids.
func NewUIDSet(uids ...string) UIDSet {
	s := make(UIDSet, len(uids))
	for _, u := range uids {
		s[u] = struct{}{}
	}
	return s
}

func (s UIDSet) Has(uid string) bool {
	_, ok := s[uid]
	return ok
}

// RecallAtK is the fraction of relevant UIDs found among the first k
// retrieved chunks. It is 0 when relevant is empty.
func RecallAtK(retrieved []chunk.Scored, relevant UIDSet, k int) float64 {
	if len(relevant) == 0 || k < 1 {
		return 0
	}
	found := make(map[string]struct{}, len(relevant))
	for _, s := range retrieved[:min(k, len(retrieved))] {
		if uid := s.UID(); relevant.Has(uid) {
			found[uid] = struct{}{}
		}
	}
	return float64(len(found)) / float64(len(relevant))
}

// PrecisionAtK is the fraction of the first min(k, len(retrieved)) chunks
// whose UID is relevant. It is 0 when nothing was retrieved.
func PrecisionAtK(retrieved []chunk.Scored, relevant UIDSet, k int) float64 {
	n := min(k, len(retrieved))
	if n < 1 {
		return 0
	}
	hits := 0
	for _, s := range retrieved[:n] {
		if relevant.Has(s.UID()) {
			hits++
		}
	}
	return float64(hits) / float64(n)
}

// MRR is the reciprocal 1-based rank of the first relevant chunk, or 0.
func MRR(retrieved []chunk.Scored, relevant UIDSet) float64 {
	for i, s := range retrieved {
		if relevant.Has(s.UID()) {
			return 1 / float64(i+1)
		}
	}
	return 0
}
