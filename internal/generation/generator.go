package generation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
)

const (
	NotFoundAnswer     = "I cannot find this information in the provided source."
	InvalidQueryAnswer = "Invalid query."
	UnavailableAnswer  = "The answer could not be generated right now. Please try again later."
)

const answerPrompt = `Answer the question using only the information in the context below.
Cite each factual statement using the format [Source X].
If the answer is not present in the context, say exactly:
"%s"

Context:
%s

Question:
%s

Answer with citations:`

var citationRe = regexp.MustCompile(`\[Source (\d+)\]`)

// Citation links a [Source N] marker in the answer to the chunk it names.
type Citation struct {
	Label  int    `json:"label"`
	Source string `json:"source"`
	Page   string `json:"page"`
	UID    string `json:"uid"`
}

// Answer is the generated text and the evidence it was grounded on.
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
	// ContextChunks is how many chunks fit in the prompt.
	ContextChunks int `json:"context_chunks"`
}

type GeneratorOptions struct {
	Temperature     float64
	MaxContextChars int
}

// Generator answers a query from an ordered evidence set.
type Generator struct {
	model   llms.Model
	opts    GeneratorOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewGenerator(model llms.Model, opts GeneratorOptions, m *metrics.Metrics) *Generator {
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 6000
	}
	return &Generator{
		model:   model,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "generator"),
	}
}

// Generate answers query from docs, most relevant first. A blank query or an
// empty evidence set returns a fixed answer without calling the model. A
// model failure returns UnavailableAnswer as a degraded result.
func (g *Generator) Generate(ctx context.Context, query string, docs []chunk.Chunk) Result[Answer] {
	query = strings.TrimSpace(query)
	if query == "" {
		return ok(Answer{Text: InvalidQueryAnswer, Citations: []Citation{}})
	}
	if len(docs) == 0 {
		return ok(Answer{Text: NotFoundAnswer, Citations: []Citation{}})
	}

	evidence, used := BuildContext(docs, g.opts.MaxContextChars)
	text, err := llm.Complete(ctx, g.model, fmt.Sprintf(answerPrompt, NotFoundAnswer, evidence, query), g.opts.Temperature)
	if err != nil {
		err = apperrors.Collaborator("generator", err)
		g.logger.Warn("answer generation failed, returning fallback answer", "error", err)
		if g.metrics != nil {
			g.metrics.CollaboratorErrs.WithLabelValues("generator").Inc()
			g.metrics.FallbacksTotal.WithLabelValues("generate").Inc()
		}
		return degraded(Answer{Text: UnavailableAnswer, Citations: []Citation{}, ContextChunks: used}, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = NotFoundAnswer
	}
	return ok(Answer{Text: text, Citations: Citations(text, docs[:used]), ContextChunks: used})
}

// BuildContext renders docs as numbered source blocks, stopping before the
// first block that would push the total past maxChars. It returns the
// context and the number of docs included.
func BuildContext(docs []chunk.Chunk, maxChars int) (string, int) {
	var b strings.Builder
	used := 0
	for i, d := range docs {
		block := fmt.Sprintf("\n[Source %d]: %s\n%s\n", i+1, sourceLabel(d), d.Content)
		if b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
		used++
	}
	return b.String(), used
}

// Citations resolves each distinct [Source N] marker in text, in order of
// first appearance. Markers outside docs are ignored.
func Citations(text string, docs []chunk.Chunk) []Citation {
	out := []Citation{}
	seen := map[int]bool{}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(docs) || seen[n] {
			continue
		}
		seen[n] = true
		d := docs[n-1]
		out = append(out, Citation{
			Label:  n,
			Source: sourceLabel(d),
			Page:   d.Metadata.PageLabel(),
			UID:    d.UID(),
		})
	}
	return out
}

func sourceLabel(c chunk.Chunk) string {
	if strings.TrimSpace(c.Metadata.Source) == "" {
		return chunk.UnknownSource
	}
	return c.Metadata.Source
}
