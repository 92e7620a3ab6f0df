package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

const multiQueryPrompt = `Generate %d different versions of this question to retrieve relevant documents.
Only output the questions, one per line, without numbering.

Original question:
%s

Alternate questions:`

const hydePrompt = `Write a short passage from an organizational policy document that answers the question below.
Do not mention that the passage is hypothetical.

Question:
%s

Passage:`

const stepBackPrompt = `Rewrite the question below as a broader question about the policy area it belongs to.
Output only the rewritten question.

Question:
%s

Broader question:`

// minVariantLen drops fragments such as stray bullets or "Sure:".
const minVariantLen = 6

// LLM asks a chat model for alternate phrasings.
type LLM struct {
	model       llms.Model
	temperature float64
	logger      *slog.Logger
}

func NewLLM(model llms.Model, temperature float64) *LLM {
	return &LLM{
		model:       model,
		temperature: temperature,
		logger:      slog.Default().With("component", "query-expander"),
	}
}

// MultiQuery returns the original query followed by up to n-1 model
// generated variants.
func (e *LLM) MultiQuery(ctx context.Context, query string, n int) ([]string, error) {
	q := strings.TrimSpace(query)
	if q == "" || n < 1 {
		return []string{}, nil
	}
	if n == 1 {
		return []string{q}, nil
	}

	text, err := llm.Complete(ctx, e.model, fmt.Sprintf(multiQueryPrompt, n-1, q), e.temperature)
	if err != nil {
		return nil, apperrors.Collaborator("query-expander", err)
	}

	variants := []string{q}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= minVariantLen {
			variants = append(variants, line)
		}
	}
	out := dedupFold(variants, n)
	e.logger.Debug("expanded query", "variants", len(out), "requested", n)
	return out, nil
}

// Hyde asks the model for a hypothetical answer passage.
func (e *LLM) Hyde(ctx context.Context, query string) (string, error) {
	return e.single(ctx, hydePrompt, query)
}

// StepBack asks the model for a broader version of query.
func (e *LLM) StepBack(ctx context.Context, query string) (string, error) {
	return e.single(ctx, stepBackPrompt, query)
}

func (e *LLM) single(ctx context.Context, prompt, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", nil
	}
	text, err := llm.Complete(ctx, e.model, fmt.Sprintf(prompt, q), e.temperature)
	if err != nil {
		return "", apperrors.Collaborator("query-expander", err)
	}
	return strings.TrimSpace(text), nil
}
