package chunk

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

var uidPattern = regexp.MustCompile(`^.+::page=(\d+|na)::hash=[0-9a-f]{32}$`)

func TestUIDFormatAndStability(t *testing.T) {
	c := New("Employees accrue 1.5 days of leave per month.", "hr/leave.pdf", 3)
	uid := c.UID()
	assert.Regexp(t, uidPattern, uid)
	assert.True(t, strings.HasPrefix(uid, "hr/leave.pdf::page=3::hash="))
	assert.Equal(t, uid, New(c.Content, "hr/leave.pdf", 3).UID())

	// Fixed vector: sha256("abc") = ba7816bf8f01cfea414140de5dae2223...
	assert.Equal(t, "unknown::page=na::hash=ba7816bf8f01cfea414140de5dae2223", New("abc", "", -1).UID())
}

func TestUIDDistinguishesPageAndSource(t *testing.T) {
	a := New("same text", "a.pdf", 0)
	b := New("same text", "a.pdf", 1)
	c := New("same text", "b.pdf", 0)
	assert.NotEqual(t, a.UID(), b.UID())
	assert.NotEqual(t, a.UID(), c.UID())
	assert.Equal(t, "a.pdf::page=0", strings.SplitN(a.UID(), "::hash", 2)[0])
}

func TestCompareRanked(t *testing.T) {
	items := []Scored{
		{Chunk: Chunk{Content: "b"}, Score: 0.5},
		{Chunk: Chunk{Content: "a"}, Score: 0.9},
		{Chunk: Chunk{Content: "c"}, Score: 0.5},
	}
	slices.SortFunc(items, CompareRanked)
	var got []string
	for _, it := range items {
		got = append(got, it.Content)
	}
	assert.Equal(t, []string{"a", "c", "b"}, got)
}

func TestNormalizeMetadata(t *testing.T) {
	m := NormalizeMetadata(map[string]any{
		"file_path": "policies/travel.pdf",
		"page":      float64(4),
		"author":    "dropped",
		"domain":    " travel ",
	})
	require.NotNil(t, m.Page)
	assert.Equal(t, 4, *m.Page)
	assert.Equal(t, "policies/travel.pdf", m.Source)
	assert.Equal(t, "travel", m.Domain)

	m = NormalizeMetadata(map[string]any{"page": "n/a"})
	assert.Equal(t, UnknownSource, m.Source)
	assert.Nil(t, m.Page)
	assert.Equal(t, NoPage, m.PageLabel())
}

func TestPreprocess(t *testing.T) {
	assert.Equal(t, "Leave policy: 20 days per year.", Preprocess("  Leave   policy:\n\t20 days (per year).  "))
	assert.Equal(t, "", Preprocess("  \n "))
}

func TestDomainFor(t *testing.T) {
	assert.Equal(t, "hr", DomainFor("data", "data/hr/leave.txt"))
	assert.Equal(t, "", DomainFor("data", "data/readme.txt"))
	assert.Equal(t, "", DomainFor("data", "other/hr/leave.txt"))
}

func TestValidate(t *testing.T) {
	valid, err := Validate([]Chunk{{Content: " "}, {Content: "x"}, {Content: ""}})
	require.NoError(t, err)
	assert.Len(t, valid, 1)

	_, err = Validate([]Chunk{{Content: "\n"}})
	assert.ErrorIs(t, err, apperrors.ErrEmptyCorpus)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("semantic")
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, m)

	_, err = ParseMode("token")
	assert.ErrorIs(t, err, apperrors.ErrInvalidChunkingMode)

	_, err = NewSplitter(SplitterOptions{Mode: ModeSemantic})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestRecursiveSplitterRespectsSize(t *testing.T) {
	para := strings.Repeat("Employees must submit expense reports within thirty days. ", 20)
	text := para + "\n\n" + para
	s := NewRecursiveSplitter(200, 40)
	pieces, err := s.SplitText(text)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 2)
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 200)
		assert.NotEmpty(t, strings.TrimSpace(p))
	}

	short, err := s.SplitText("A short policy.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A short policy."}, short)
}

func TestRecursiveSplitterCarriesOverlap(t *testing.T) {
	text := "Leave must be approved. Requests go to the manager. Unused days expire in March. Carry-over needs HR sign-off."
	pieces, err := NewRecursiveSplitter(60, 30).SplitText(text)
	require.NoError(t, err)
	// The separator opens the piece that follows it, and each chunk repeats
	// the last sentence of the one before.
	assert.Equal(t, []string{
		"Leave must be approved. Requests go to the manager",
		". Requests go to the manager. Unused days expire in March",
		". Unused days expire in March. Carry-over needs HR sign-off.",
	}, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 60)
	}
}

func TestRecursiveSplitterKeepsMetadata(t *testing.T) {
	page := New(strings.Repeat("word ", 100), "a.txt", 2)
	out, err := NewRecursiveSplitter(50, 10).Split(context.Background(), []Chunk{page})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, c := range out {
		assert.Equal(t, page.Metadata, c.Metadata)
	}
}

func TestSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"First rule.", "Second rule!", "Third?", "tail"},
		Sentences("First rule. Second rule!  Third?\ntail"))
	assert.Equal(t, []string{"v1.2 is current."}, Sentences("v1.2 is current."))
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 1.9, Percentile([]float64{4, 1, 2, 3}, 30), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 30))
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestSemanticSplitterBreaksOnTopicShift(t *testing.T) {
	emb := fakeEmbedder{vectors: map[string][]float32{
		"Leave accrues monthly.":     {1, 0},
		"Unused leave carries over.": {1, 0.1},
		"Laptops must be encrypted.": {0, 1},
		"Passwords rotate yearly.":   {0.1, 1},
	}}
	sp, err := NewSplitter(SplitterOptions{Mode: ModeSemantic, ChunkSize: 10, BreakpointPercentile: 30, Embedder: emb})
	require.NoError(t, err)

	page := New("Leave accrues monthly. Unused leave carries over. Laptops must be encrypted. Passwords rotate yearly.", "p.txt", 0)
	out, err := sp.Split(context.Background(), []Chunk{page})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Leave accrues monthly. Unused leave carries over.", out[0].Content)
	assert.Equal(t, "Laptops must be encrypted. Passwords rotate yearly.", out[1].Content)

	_, err = (&SemanticSplitter{embedder: fakeEmbedder{err: errors.New("down")}, chunkSize: 10}).
		Split(context.Background(), []Chunk{page})
	assert.ErrorIs(t, err, apperrors.ErrCollaborator)
}
