package lexical

import "math"

// Params are the BM25 Okapi constants.
type Params struct {
	K1 float64
	B  float64
	// Epsilon scales the average IDF that replaces negative IDF values
	// (terms present in more than half the corpus).
	Epsilon float64
}

// DefaultParams are the conventional BM25 Okapi settings.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

type posting struct {
	doc  int
	freq int
}

// model is an immutable BM25 Okapi model over one corpus snapshot.
type model struct {
	params   Params
	postings map[string][]posting
	idf      map[string]float64
	docLen   []int
	avgdl    float64
}

func buildModel(docs [][]string, params Params) *model {
	m := &model{
		params:   params,
		postings: make(map[string][]posting),
		idf:      make(map[string]float64),
		docLen:   make([]int, len(docs)),
	}
	// vocab keeps first-seen order so the IDF sum below is reproducible.
	var vocab []string
	total := 0
	for i, terms := range docs {
		m.docLen[i] = len(terms)
		total += len(terms)
		freqs := make(map[string]int, len(terms))
		for _, t := range terms {
			freqs[t]++
		}
		for _, t := range terms {
			f, pending := freqs[t]
			if !pending {
				continue
			}
			delete(freqs, t)
			if _, seen := m.postings[t]; !seen {
				vocab = append(vocab, t)
			}
			m.postings[t] = append(m.postings[t], posting{doc: i, freq: f})
		}
	}
	m.avgdl = float64(total) / float64(len(docs))

	n := float64(len(docs))
	var idfSum float64
	var negative []string
	for _, t := range vocab {
		df := float64(len(m.postings[t]))
		idf := math.Log(n-df+0.5) - math.Log(df+0.5)
		m.idf[t] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, t)
		}
	}
	if len(m.idf) > 0 {
		floor := params.Epsilon * idfSum / float64(len(m.idf))
		for _, t := range negative {
			m.idf[t] = floor
		}
	}
	return m
}

// scores returns one BM25 score per document. Repeated query terms count
// once per occurrence; unknown terms contribute nothing.
func (m *model) scores(query []string) []float64 {
	out := make([]float64, len(m.docLen))
	if m.avgdl == 0 {
		return out
	}
	k1, b := m.params.K1, m.params.B
	for _, t := range query {
		idf, ok := m.idf[t]
		if !ok {
			continue
		}
		for _, p := range m.postings[t] {
			tf := float64(p.freq)
			norm := k1 * (1 - b + b*float64(m.docLen[p.doc])/m.avgdl)
			out[p.doc] += idf * tf * (k1 + 1) / (tf + norm)
		}
	}
	return out
}
