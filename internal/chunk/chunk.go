// Package chunk defines the unit of retrieval: a passage of policy text with
// a fixed set of metadata fields, and the stable identifier every other
// component uses to recognise it.
//
// The identifier (UID) has the form
//
//	<source>::page=<page>::hash=<hash>
//
// where <source> defaults to "unknown", <page> is the decimal page number or
// "na" when the chunk has none, and <hash> is the first 16 bytes of the
// SHA-256 digest of the UTF-8 content, lower-case hex encoded (32
// characters). The scheme depends only on the chunk itself, so it is stable
// across processes, platforms and releases.
package chunk

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	UnknownSource = "unknown"
	NoPage        = "na"
)

// Metadata is the closed set of attributes a chunk carries. Anything else
// found at ingestion is dropped by NormalizeMetadata.
type Metadata struct {
	Source string `json:"source"`
	// Page is nil when the source format has no page structure.
	Page   *int   `json:"page,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Chunk is an immutable passage of policy text.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Scored pairs a chunk with a score whose meaning depends on the producer
// (fused hybrid score or cross-encoder relevance).
type Scored struct {
	Chunk
	Score float64 `json:"score"`
}

// New builds a chunk. page < 0 means no page.
func New(content, source string, page int) Chunk {
	c := Chunk{Content: content, Metadata: Metadata{Source: source}}
	if page >= 0 {
		c.Metadata.Page = &page
	}
	return c
}

// PageLabel renders the page component of the UID.
func (m Metadata) PageLabel() string {
	if m.Page == nil {
		return NoPage
	}
	return strconv.Itoa(*m.Page)
}

func (m Metadata) source() string {
	if strings.TrimSpace(m.Source) == "" {
		return UnknownSource
	}
	return m.Source
}

// ContentHash returns the 32-character hash component of the UID.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

// UID returns the chunk's stable identifier.
func (c Chunk) UID() string {
	var b strings.Builder
	b.WriteString(c.Metadata.source())
	b.WriteString("::page=")
	b.WriteString(c.Metadata.PageLabel())
	b.WriteString("::hash=")
	b.WriteString(ContentHash(c.Content))
	return b.String()
}

// IsBlank reports whether the chunk has no non-whitespace content.
func (c Chunk) IsBlank() bool {
	return strings.TrimSpace(c.Content) == ""
}

// CompareRanked orders scored chunks by score descending, then by content
// descending. It is the ranking order shared by hybrid retrieval and
// re-ranking. Equal contents fall back to source and page, also descending,
// so the order is total over distinct UIDs.
func CompareRanked(a, b Scored) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := strings.Compare(b.Content, a.Content); c != 0 {
		return c
	}
	if c := strings.Compare(b.Metadata.source(), a.Metadata.source()); c != 0 {
		return c
	}
	return strings.Compare(b.Metadata.PageLabel(), a.Metadata.PageLabel())
}

// Chunks strips the scores.
func Chunks(scored []Scored) []Chunk {
	out := make([]Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out
}
