package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/rerank"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

// memDense ranks chunks by shared lower-case words with the query.
type memDense struct {
	mu        sync.Mutex
	chunks    []chunk.Chunk
	buildErr  error
	searchErr error
	block     chan struct{}
}

func (m *memDense) Build(_ context.Context, chunks []chunk.Chunk) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buildErr != nil {
		return m.buildErr
	}
	m.chunks = append([]chunk.Chunk(nil), chunks...)
	return nil
}

func (m *memDense) SimilaritySearchWithScore(_ context.Context, query string, k int) ([]vector.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	terms := strings.Fields(strings.ToLower(query))
	out := make([]vector.Match, len(m.chunks))
	for i, c := range m.chunks {
		overlap := 0
		for _, t := range terms {
			if strings.Contains(strings.ToLower(c.Content), t) {
				overlap++
			}
		}
		out[i] = vector.Match{Chunk: c, Distance: 1 / float64(1+overlap)}
	}
	slices.SortStableFunc(out, func(a, b vector.Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return out[:min(k, len(out))], nil
}

type lengthModel struct{ err error }

func (l lengthModel) Predict(_ context.Context, pairs []rerank.Pair) ([]float64, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = float64(len(p.Document))
	}
	return out, nil
}

type staticLoader []chunk.Chunk

func (s staticLoader) Load(context.Context) ([]chunk.Chunk, error) { return s, nil }

func policyCorpus() []chunk.Chunk {
	return []chunk.Chunk{
		chunk.New("Employees on probation accrue leave but may not take it in the first month.", "hr/leave.pdf", 16),
		chunk.New("Annual leave requests must be approved by the reporting manager.", "hr/leave.pdf", 17),
		chunk.New("Expense claims above the approval limit need finance sign-off.", "finance/expense.pdf", 3),
		chunk.New("Personal devices may not join the corporate network without MDM.", "it/security.pdf", 5),
		chunk.New("Security violations are escalated to the CISO within 24 hours.", "it/security.pdf", 15),
		chunk.New("Travel must be booked through the approved agency.", "finance/travel.pdf", 1),
		chunk.New("Leave encashment is limited to thirty days per year.", "hr/leave.pdf", 18),
	}
}

func answeringModel() *llm.Scripted {
	return &llm.Scripted{Respond: func(string) (string, error) {
		return "Probationers accrue leave [Source 1].", nil
	}}
}

func newPipeline(t *testing.T, deps Deps, opts Options, m *metrics.Metrics) *Pipeline {
	t.Helper()
	if deps.Dense == nil {
		deps.Dense = &memDense{}
	}
	if deps.Generator == nil {
		deps.Generator = generation.NewGenerator(answeringModel(), generation.GeneratorOptions{}, m)
	}
	p, err := New(deps, opts, m)
	require.NoError(t, err)
	return p
}

func TestLifecycle(t *testing.T) {
	m := metrics.NewUnregistered()
	p := newPipeline(t, Deps{}, Options{}, m)
	assert.Equal(t, StateUninitialized, p.State())
	assert.ErrorIs(t, p.Ready(context.Background()), apperrors.ErrNotReady)

	_, err := p.Retrieve(context.Background(), "leave")
	assert.ErrorIs(t, err, apperrors.ErrNotReady)

	err = p.Build(context.Background(), []chunk.Chunk{chunk.New("  ", "x", 0)})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Equal(t, StateUninitialized, p.State())

	require.NoError(t, p.Build(context.Background(), policyCorpus()))
	assert.Equal(t, StateReady, p.State())
	assert.NoError(t, p.Ready(context.Background()))
	v, n := p.Snapshot()
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 7, n)
	assert.Equal(t, float64(StateReady), testutil.ToFloat64(m.PipelineState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("success")))
}

func TestFailedRebuildKeepsSnapshot(t *testing.T) {
	dense := &memDense{}
	p := newPipeline(t, Deps{Dense: dense}, Options{}, nil)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	dense.buildErr = apperrors.Collaborator("embedder", errors.New("model not loaded"))
	err := p.Build(context.Background(), policyCorpus()[:2])
	assert.ErrorIs(t, err, apperrors.ErrCollaborator)
	assert.Equal(t, StateReady, p.State())
	v, n := p.Snapshot()
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 7, n)
}

func TestQueriesRejectedDuringRebuild(t *testing.T) {
	dense := &memDense{}
	p := newPipeline(t, Deps{Dense: dense}, Options{}, nil)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	dense.block = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- p.Build(context.Background(), policyCorpus()[:3]) }()

	require.Eventually(t, func() bool { return p.State() == StateRebuildInProgress }, time.Second, time.Millisecond)
	_, err := p.Retrieve(context.Background(), "leave")
	assert.ErrorIs(t, err, apperrors.ErrNotReady)
	assert.ErrorIs(t, p.Build(context.Background(), policyCorpus()), apperrors.ErrNotReady)

	close(dense.block)
	require.NoError(t, <-done)
	v, n := p.Snapshot()
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, 3, n)
}

func TestRebuildUsesLoader(t *testing.T) {
	p := newPipeline(t, Deps{Loader: staticLoader(policyCorpus()[:4])}, Options{}, nil)
	require.NoError(t, p.Rebuild(context.Background()))
	_, n := p.Snapshot()
	assert.Equal(t, 4, n)

	bare := newPipeline(t, Deps{}, Options{}, nil)
	assert.ErrorIs(t, bare.Rebuild(context.Background()), apperrors.ErrConfiguration)
}

func TestRetrieveMergesVariants(t *testing.T) {
	p := newPipeline(t, Deps{Expander: expansion.Template{}}, Options{NumQueries: 3}, nil)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	res, err := p.Retrieve(context.Background(), " leave probation ")
	require.NoError(t, err)
	assert.Equal(t, []string{"leave probation", "Explain leave probation", "What are the rules related to leave probation?"}, res.Queries)

	seen := map[string]bool{}
	for _, c := range res.Candidates {
		require.False(t, seen[c.UID()], c.UID())
		seen[c.UID()] = true
	}
	assert.LessOrEqual(t, len(res.Candidates), 7)

	blank, err := p.Retrieve(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, blank.Candidates)
}

func TestRetrieveForEvaluation(t *testing.T) {
	p := newPipeline(t, Deps{}, Options{Retrieval: retrieval.Params{K: 10, Alpha: 0.5, BM25CandidatePool: 10}}, nil)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	got, err := p.RetrieveForEvaluation(context.Background(), "expense approval limit", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "finance/expense.pdf", got[0].Metadata.Source)

	again, err := p.RetrieveForEvaluation(context.Background(), "expense approval limit", 3)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestRunEndToEnd(t *testing.T) {
	m := metrics.NewUnregistered()
	model := answeringModel()
	p := newPipeline(t, Deps{
		Expander:  expansion.Template{},
		Reranker:  rerank.New(lengthModel{}, m),
		Generator: generation.NewGenerator(model, generation.GeneratorOptions{}, m),
	}, Options{NumQueries: 2, RerankTopN: 3}, m)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	ans, err := p.Run(context.Background(), "leave during probation")
	require.NoError(t, err)
	assert.NotEmpty(t, ans.QueryID)
	assert.Equal(t, "Probationers accrue leave [Source 1].", ans.Answer)
	assert.Equal(t, []string{"leave during probation", "Explain leave during probation"}, ans.Queries)
	require.Len(t, ans.Evidence, 3)
	for i := 1; i < len(ans.Evidence); i++ {
		assert.GreaterOrEqual(t, ans.Evidence[i-1].Score, ans.Evidence[i].Score)
	}
	assert.Equal(t, 3, ans.NumSources)
	assert.Equal(t, 1, ans.Sources[0].Label)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, ans.Sources[0].UID, ans.Citations[0].UID)
	assert.False(t, ans.Degraded)
	assert.Equal(t, uint64(1), ans.Snapshot)
	for _, stage := range []string{"expand", "retrieve", "rerank", "generate", "total"} {
		assert.Contains(t, ans.Timings, stage)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("answered")))
	assert.Len(t, model.Prompts(), 1)
}

func TestRunDegradesOnRerankAndExpansionFailure(t *testing.T) {
	m := metrics.NewUnregistered()
	failing := &llm.Scripted{Respond: func(string) (string, error) { return "", errors.New("llm offline") }}
	p := newPipeline(t, Deps{
		Expander: expansion.NewLLM(failing, 0),
		Reranker: rerank.New(lengthModel{err: errors.New("cross-encoder 500")}, m),
	}, Options{RerankTopN: 2}, m)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	ans, err := p.Run(context.Background(), "security violations")
	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Equal(t, []string{"security violations"}, ans.Queries)
	assert.Len(t, ans.Evidence, 2)
	assert.Len(t, ans.Warnings, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("rerank")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("expand")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("degraded")))
}

func TestRunCompression(t *testing.T) {
	compressModel := &llm.Scripted{Respond: func(p string) (string, error) {
		if strings.Contains(p, "probation accrue") {
			return "Employees on probation accrue leave.", nil
		}
		return "None", nil
	}}
	p := newPipeline(t, Deps{
		Compressor: generation.NewCompressor(compressModel, generation.CompressorOptions{}, nil),
	}, Options{Compression: true, RerankTopN: 3}, nil)
	require.NoError(t, p.Build(context.Background(), policyCorpus()))

	ans, err := p.Run(context.Background(), "leave probation")
	require.NoError(t, err)
	require.Equal(t, 1, ans.NumSources)
	assert.Equal(t, "Employees on probation accrue leave.", ans.Sources[0].Content)
	assert.Equal(t, "16", ans.Sources[0].Page)
	assert.Len(t, ans.Evidence, 3)
}

func TestRunBlankQueryAndFailures(t *testing.T) {
	m := metrics.NewUnregistered()
	dense := &memDense{}
	p := newPipeline(t, Deps{Dense: dense}, Options{}, m)

	ans, err := p.Run(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, generation.InvalidQueryAnswer, ans.Answer)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("empty_query")))

	_, err = p.Run(context.Background(), "leave")
	assert.ErrorIs(t, err, apperrors.ErrNotReady)

	require.NoError(t, p.Build(context.Background(), policyCorpus()))
	dense.searchErr = errors.New("index unreachable")
	_, err = p.Run(context.Background(), "leave")
	assert.ErrorIs(t, err, apperrors.ErrCollaborator)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("error")))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Deps{}, Options{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = New(Deps{Dense: &memDense{}}, Options{Retrieval: retrieval.Params{K: 5, Alpha: 2, BM25CandidatePool: 5}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}
