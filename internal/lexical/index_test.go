package lexical

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

func corpus(texts ...string) []chunk.Chunk {
	out := make([]chunk.Chunk, len(texts))
	for i, t := range texts {
		out[i] = chunk.New(t, "policy.txt", i)
	}
	return out
}

func TestBuildEmptyCorpus(t *testing.T) {
	err := New().Build(nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
	assert.Nil(t, New().Score("anything"))
}

func TestScoreOkapi(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Build(corpus("annual leave policy", "sick leave rules", "travel expense policy")))

	scores := ix.Score("Annual leave")
	require.Len(t, scores, 3)

	// df=1 terms: ln(2.5/1.5); df=2 terms have negative idf and fall back
	// to 0.25 * mean idf.
	idf1 := math.Log(2.5) - math.Log(1.5)
	floor := 0.25 * (3 * idf1 / 7)
	assert.InDelta(t, idf1+floor, scores[0], 1e-9)
	assert.InDelta(t, floor, scores[1], 1e-9)
	assert.Equal(t, 0.0, scores[2])
}

func TestScoreUnknownTermsAndDeterminism(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Build(corpus("remote work allowance", "equipment reimbursement")))
	assert.Equal(t, []float64{0, 0}, ix.Score("parental"))
	assert.Equal(t, []float64{0, 0}, ix.Score(""))
	assert.Equal(t, ix.Score("remote equipment"), ix.Score("remote equipment"))
}

func TestRebuildScoresAreBitIdentical(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("policy common leave t%d t%d rule%d", i%7, i%5, i)
		if i%3 == 0 {
			texts[i] += " policy handbook"
		}
	}
	chunks := corpus(texts...)

	first := New()
	require.NoError(t, first.Build(chunks))
	want := first.Score("policy common t3")

	for range 100 {
		ix := New()
		require.NoError(t, ix.Build(chunks))
		got := ix.Score("policy common t3")
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, math.Float64bits(want[i]), math.Float64bits(got[i]), "doc %d", i)
		}
	}
}

func TestRepeatedQueryTermsAccumulate(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Build(corpus("overtime pay", "holiday pay rules", "expense rules")))
	once := ix.Score("overtime")
	twice := ix.Score("overtime overtime")
	assert.InDelta(t, 2*once[0], twice[0], 1e-12)
}

func TestTopNTiesByIndex(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, TopN([]float64{1, 1, 5, 0}, 3))
	assert.Equal(t, []int{1, 2, 0}, TopN([]float64{0, 0.5, 0.5}, 10))
	assert.Nil(t, TopN([]float64{1}, 0))
}

func TestTopNMatchesFullSort(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scores := rapid.SliceOf(rapid.SampledFrom([]float64{0, 0.25, 0.5, 1, 2})).Draw(rt, "scores")
		n := rapid.IntRange(0, len(scores)+2).Draw(rt, "n")
		got := TopN(scores, n)

		require.Len(rt, got, min(n, len(scores)))
		for i := 1; i < len(got); i++ {
			a, b := got[i-1], got[i]
			if scores[a] == scores[b] {
				require.Less(rt, a, b)
			} else {
				require.Greater(rt, scores[a], scores[b])
			}
		}
		// Nothing left out beats the weakest selected candidate.
		if len(got) > 0 {
			last := got[len(got)-1]
			selected := map[int]bool{}
			for _, i := range got {
				selected[i] = true
			}
			for i, s := range scores {
				if !selected[i] {
					require.True(rt, s < scores[last] || (s == scores[last] && i > last))
				}
			}
		}
	})
}

func TestSearchAndRefresh(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Build(corpus("data retention schedule", "visitor badge policy", "clean desk rules")))
	hits := ix.Search("badge", 1)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Index)
	assert.Equal(t, "visitor badge policy", hits[0].Chunk.Content)

	require.NoError(t, ix.Refresh(corpus("badge replacement fee", "lost badge reporting", "parking")))
	assert.Equal(t, 3, ix.Len())
	assert.Len(t, ix.Search("badge", 5), 3)

	assert.ErrorIs(t, ix.Refresh(nil), apperrors.ErrEmptyCorpus)
	assert.Equal(t, 3, ix.Len())
}

func TestStemmedTokenizer(t *testing.T) {
	assert.Equal(t, []string{"report", "pend"}, Stemmed("The reports are pending!"))
	assert.Equal(t, []string{"not", "allow"}, Stemmed("Not allowed."))

	tok, err := TokenizerByName("stemmed")
	require.NoError(t, err)
	ix := New(WithTokenizer(tok))
	require.NoError(t, ix.Build(corpus("Reimbursements are processed monthly", "Travel booking", "Office hours")))
	scores := ix.Score("reimbursement process")
	assert.Greater(t, scores[0], 0.0)

	_, err = TokenizerByName("bpe")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
