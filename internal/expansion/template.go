package expansion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var variantTemplates = []string{
	"Explain %s",
	"What are the rules related to %s?",
	"Policy regarding %s",
	"Company guidelines for %s",
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9 ]`)

// Template expands queries with fixed phrasings and never calls out.
type Template struct{}

func (Template) MultiQuery(_ context.Context, query string, n int) ([]string, error) {
	base := strings.TrimSpace(query)
	if base == "" || n < 1 {
		return []string{}, nil
	}
	variants := make([]string, 0, len(variantTemplates)+1)
	variants = append(variants, base)
	for _, t := range variantTemplates {
		variants = append(variants, fmt.Sprintf(t, base))
	}
	return dedupFold(variants, n), nil
}

// Hyde returns a hypothetical passage describing where the answer to query
// would be documented.
func (Template) Hyde(_ context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", nil
	}
	return fmt.Sprintf("This query refers to official organizational policies, rules, and documented procedures related to %s. "+
		"The answer is expected to be found in policy or HR documentation.", q), nil
}

// StepBack generalises query to the policy area it belongs to.
func (Template) StepBack(_ context.Context, query string) (string, error) {
	clean := strings.TrimSpace(nonAlnum.ReplaceAllString(query, ""))
	if clean == "" {
		return "", nil
	}
	return fmt.Sprintf("What are the general organizational policies related to %s?", clean), nil
}
