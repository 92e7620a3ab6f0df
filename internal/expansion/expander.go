// Package expansion rewrites a user query into an ordered set of variant
// phrasings. The original query is always the first variant.
package expansion

import (
	"context"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// Mode names an expansion strategy in configuration.
type Mode string

const (
	ModeNone     Mode = "none"
	ModeTemplate Mode = "template"
	ModeLLM      Mode = "llm"
)

// Expander produces at most n variants of query, original first. A blank
// query yields no variants.
type Expander interface {
	MultiQuery(ctx context.Context, query string, n int) ([]string, error)
}

// Transformer also offers single-query rewrites: a hypothetical answer
// passage (HyDE) and a broader step-back question. Blank queries yield "".
type Transformer interface {
	Expander
	Hyde(ctx context.Context, query string) (string, error)
	StepBack(ctx context.Context, query string) (string, error)
}

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNone, ModeTemplate, ModeLLM:
		return m, nil
	case "":
		return ModeTemplate, nil
	default:
		return "", apperrors.Configf("unknown expansion mode %q", s)
	}
}

// Passthrough returns the query unchanged as its only variant.
type Passthrough struct{}

func (Passthrough) MultiQuery(_ context.Context, query string, n int) ([]string, error) {
	q := strings.TrimSpace(query)
	if q == "" || n < 1 {
		return []string{}, nil
	}
	return []string{q}, nil
}

func (Passthrough) Hyde(_ context.Context, query string) (string, error) {
	return strings.TrimSpace(query), nil
}

func (Passthrough) StepBack(_ context.Context, query string) (string, error) {
	return strings.TrimSpace(query), nil
}

// dedupFold keeps the first occurrence of each variant under case folding
// and drops blanks, then truncates to n.
func dedupFold(variants []string, n int) []string {
	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, min(len(variants), max(n, 0)))
	for _, v := range variants {
		if len(out) >= n {
			break
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
