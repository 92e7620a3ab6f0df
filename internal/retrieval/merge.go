package retrieval

import "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"

// MergeVariants concatenates per-variant results in order and drops every
// chunk whose UID has already been seen. The first occurrence is kept with
// its original score; scores from later variants are discarded.
func MergeVariants(results ...[]chunk.Scored) []chunk.Scored {
	total := 0
	for _, r := range results {
		total += len(r)
	}
	seen := make(map[string]struct{}, total)
	out := make([]chunk.Scored, 0, total)
	for _, r := range results {
		for _, s := range r {
			uid := s.UID()
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
