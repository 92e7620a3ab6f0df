package chunk

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// Mode selects a chunking strategy.
type Mode string

const (
	ModeRecursive Mode = "recursive"
	ModeSemantic  Mode = "semantic"
)

// ParseMode validates a configured chunking mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRecursive, ModeSemantic:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%q: %w", s, apperrors.ErrInvalidChunkingMode)
	}
}

// Splitter turns loaded pages into retrieval chunks. Output chunks inherit
// the metadata of the page they came from.
type Splitter interface {
	Split(ctx context.Context, pages []Chunk) ([]Chunk, error)
}

// SentenceEmbedder embeds a batch of sentences for semantic chunking.
type SentenceEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// SplitterOptions configures NewSplitter.
type SplitterOptions struct {
	Mode                 Mode
	ChunkSize            int
	ChunkOverlap         int
	BreakpointPercentile float64
	// Embedder is required by ModeSemantic.
	Embedder SentenceEmbedder
}

// NewSplitter returns the splitter for opts.Mode.
func NewSplitter(opts SplitterOptions) (Splitter, error) {
	switch opts.Mode {
	case ModeRecursive:
		return NewRecursiveSplitter(opts.ChunkSize, opts.ChunkOverlap), nil
	case ModeSemantic:
		if opts.Embedder == nil {
			return nil, apperrors.Configf("semantic chunking requires an embedder")
		}
		return &SemanticSplitter{
			embedder:   opts.Embedder,
			chunkSize:  opts.ChunkSize,
			percentile: opts.BreakpointPercentile,
		}, nil
	default:
		return nil, fmt.Errorf("%q: %w", opts.Mode, apperrors.ErrInvalidChunkingMode)
	}
}

var defaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// RecursiveSplitter splits on the coarsest separator present, recursing into
// pieces that are still too long, then merges neighbouring pieces up to the
// chunk size in runes with the configured overlap carried over.
type RecursiveSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(defaultSeparators),
		textsplitter.WithKeepSeparator(true),
	)}
}

func (s *RecursiveSplitter) Split(_ context.Context, pages []Chunk) ([]Chunk, error) {
	var out []Chunk
	for _, p := range pages {
		texts, err := s.SplitText(p.Content)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", p.Metadata.PageLabel(), err)
		}
		for _, text := range texts {
			out = append(out, Chunk{Content: text, Metadata: p.Metadata})
		}
	}
	return out, nil
}

// SplitText splits a single text. Blank pieces are dropped.
func (s *RecursiveSplitter) SplitText(text string) ([]string, error) {
	pieces, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// SemanticSplitter splits each page into sentences, embeds them and starts a
// new chunk where the similarity of adjacent sentences falls below the
// configured percentile, provided the running chunk already exceeds the
// chunk size.
type SemanticSplitter struct {
	embedder   SentenceEmbedder
	chunkSize  int
	percentile float64
}

func (s *SemanticSplitter) Split(ctx context.Context, pages []Chunk) ([]Chunk, error) {
	var out []Chunk
	for _, p := range pages {
		sentences := Sentences(p.Content)
		if len(sentences) <= 1 {
			out = append(out, p)
			continue
		}
		vectors, err := s.embedder.EmbedDocuments(ctx, sentences)
		if err != nil {
			return nil, apperrors.Collaborator("embedder", err)
		}
		if len(vectors) != len(sentences) {
			return nil, apperrors.Collaborator("embedder",
				fmt.Errorf("got %d embeddings for %d sentences", len(vectors), len(sentences)))
		}
		sims := make([]float64, len(sentences)-1)
		for i := range sims {
			sims[i] = cosine(vectors[i], vectors[i+1])
		}
		threshold := Percentile(sims, s.percentile)

		var current []string
		for i, sentence := range sentences {
			current = append(current, sentence)
			if i < len(sims) && sims[i] < threshold {
				if text := strings.Join(current, " "); utf8.RuneCountInString(text) > s.chunkSize {
					out = append(out, Chunk{Content: text, Metadata: p.Metadata})
					current = nil
				}
			}
		}
		if len(current) > 0 {
			out = append(out, Chunk{Content: strings.Join(current, " "), Metadata: p.Metadata})
		}
	}
	return out, nil
}

// Sentences splits text after '.', '!' or '?' followed by whitespace.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if !strings.ContainsRune(".!?", runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// Percentile computes the p-th percentile of values with linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	p = min(max(p, 0), 100)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
