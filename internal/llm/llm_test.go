package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/resilience"
)

func TestGuardedPassesThrough(t *testing.T) {
	model := &Scripted{Respond: func(p string) (string, error) { return "echo: " + p, nil }}
	g := NewGuarded(model, nil, time.Second)

	out, err := Complete(context.Background(), g, "hello", 0)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.Equal(t, []string{"hello"}, model.Prompts())
}

func TestGuardedTripsBreaker(t *testing.T) {
	model := &Scripted{Respond: func(string) (string, error) { return "", errors.New("503 from upstream") }}
	breaker := resilience.NewCircuitBreaker("llm", resilience.CircuitBreakerConfig{FailureThreshold: 1})
	g := NewGuarded(model, breaker, time.Second)

	_, err := Complete(context.Background(), g, "a", 0)
	require.Error(t, err)
	_, err = Complete(context.Background(), g, "b", 0)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, model.Prompts(), 1)
}
