package expansion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

func TestTemplateMultiQuery(t *testing.T) {
	got, err := Template{}.MultiQuery(context.Background(), "  remote work  ", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"remote work",
		"Explain remote work",
		"What are the rules related to remote work?",
	}, got)

	all, err := Template{}.MultiQuery(context.Background(), "remote work", 10)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	empty, err := Template{}.MultiQuery(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTemplateHelpers(t *testing.T) {
	ctx := context.Background()
	stepBack, err := Template{}.StepBack(ctx, "sick leave?!")
	require.NoError(t, err)
	assert.Equal(t, "What are the general organizational policies related to sick leave?", stepBack)

	hyde, err := Template{}.Hyde(ctx, " travel ")
	require.NoError(t, err)
	assert.Contains(t, hyde, "documented procedures related to travel.")

	blank, err := Template{}.StepBack(ctx, "?!")
	require.NoError(t, err)
	assert.Empty(t, blank)
}

func TestPassthrough(t *testing.T) {
	got, err := Passthrough{}.MultiQuery(context.Background(), " badge ", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"badge"}, got)
}

func TestLLMMultiQuery(t *testing.T) {
	model := &llm.Scripted{Respond: func(string) (string, error) {
		return "What is the WFH policy?\nok\n\nWORK FROM HOME?\nwork from home?\nHow many remote days are allowed?", nil
	}}
	e := NewLLM(model, 0)

	got, err := e.MultiQuery(context.Background(), "work from home?", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"work from home?", "What is the WFH policy?", "How many remote days are allowed?"}, got)
	require.Len(t, model.Prompts(), 1)
	assert.True(t, strings.HasPrefix(model.Prompts()[0], "Generate 2 different versions"))

	one, err := e.MultiQuery(context.Background(), "work from home?", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"work from home?"}, one)
	assert.Len(t, model.Prompts(), 1)
}

func TestLLMMultiQueryFailure(t *testing.T) {
	model := &llm.Scripted{Respond: func(string) (string, error) { return "", errors.New("model offline") }}
	_, err := NewLLM(model, 0).MultiQuery(context.Background(), "expenses", 2)
	assert.ErrorIs(t, err, apperrors.ErrCollaborator)
}

func TestParseModeAndNew(t *testing.T) {
	m, err := ParseMode("LLM")
	require.NoError(t, err)
	assert.Equal(t, ModeLLM, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTemplate, m)

	_, err = ParseMode("hyde")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = New(ModeLLM, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	e, err := New(ModeNone, nil, 0)
	require.NoError(t, err)
	assert.IsType(t, Passthrough{}, e)
}

func TestVariantsStartWithOriginal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		q := rapid.StringMatching(`[a-z]{1,8}( [a-z]{1,8}){0,3}`).Draw(rt, "query")
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		got, err := Template{}.MultiQuery(context.Background(), q, n)
		require.NoError(rt, err)
		require.NotEmpty(rt, got)
		require.LessOrEqual(rt, len(got), n)
		require.Equal(rt, q, got[0])

		seen := map[string]bool{}
		for _, v := range got {
			k := strings.ToLower(v)
			require.False(rt, seen[k], v)
			seen[k] = true
		}
	})
}
