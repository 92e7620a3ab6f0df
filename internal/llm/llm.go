// Package llm connects the pipeline to an OpenAI-compatible chat endpoint
// through langchaingo and guards every call with a circuit breaker and a
// per-call deadline.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

// New returns a chat model for cfg.ChatModel at cfg.BaseURL.
func New(cfg config.LLMConfig) (llms.Model, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.ChatModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chat model client: %w", err)
	}
	return model, nil
}

// Guarded wraps a model with a circuit breaker and a timeout.
type Guarded struct {
	next    llms.Model
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

var _ llms.Model = (*Guarded)(nil)

func NewGuarded(next llms.Model, breaker *resilience.CircuitBreaker, timeout time.Duration) *Guarded {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{})
	}
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

func (g *Guarded) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	results := make(chan *llms.ContentResponse, 1)
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "llm", func(ctx context.Context) error {
			resp, err := g.next.GenerateContent(ctx, messages, options...)
			if err != nil {
				return err
			}
			results <- resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return <-results, nil
}

func (g *Guarded) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// Complete sends a single human prompt and returns the text of the first
// choice.
func Complete(ctx context.Context, model llms.Model, prompt string, temperature float64) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, model, prompt, llms.WithTemperature(temperature))
}
