// Package corpus produces corpus snapshots for the pipeline, either by
// walking policy document directories or by reading the chunks persisted by
// the ingestion service in PostgreSQL.
package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
)

// pageBreak separates pages in plain-text exports of paginated documents.
const pageBreak = "\f"

// record is one line of a pre-chunked .jsonl file.
type record struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// FileLoader reads .txt, .md and .jsonl files below a set of paths. Text
// files are preprocessed and split; .jsonl records are taken as chunks.
type FileLoader struct {
	paths    []string
	splitter chunk.Splitter
	logger   *slog.Logger
}

func NewFileLoader(paths []string, splitter chunk.Splitter) *FileLoader {
	return &FileLoader{
		paths:    paths,
		splitter: splitter,
		logger:   slog.Default().With("component", "file-loader"),
	}
}

// Load walks every path in lexical order. The domain of a chunk is the
// first directory below the path it was found under.
func (l *FileLoader) Load(ctx context.Context) ([]chunk.Chunk, error) {
	var pages, prechunked []chunk.Chunk
	files := 0
	for _, root := range l.paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading corpus path: %w", err)
		}
		base := root
		if !info.IsDir() {
			base = filepath.Dir(root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			domain := chunk.DomainFor(base, path)
			switch strings.ToLower(filepath.Ext(path)) {
			case ".txt", ".md":
				p, err := readPages(path, domain)
				if err != nil {
					return err
				}
				pages = append(pages, p...)
			case ".jsonl":
				r, err := readRecords(path, domain)
				if err != nil {
					return err
				}
				prechunked = append(prechunked, r...)
			default:
				l.logger.Debug("skipping unsupported file", "path", path)
				return nil
			}
			files++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	split, err := l.splitter.Split(ctx, pages)
	if err != nil {
		return nil, fmt.Errorf("splitting pages: %w", err)
	}
	chunks, err := chunk.Validate(append(split, prechunked...))
	if err != nil {
		return nil, err
	}
	l.logger.Info("corpus loaded", "files", files, "pages", len(pages), "chunks", len(chunks))
	return chunks, nil
}

func readPages(path, domain string) ([]chunk.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Pages(string(data), filepath.ToSlash(path), domain), nil
}

// Pages preprocesses text into one chunk per form-feed separated page,
// numbered from 0. Text without page breaks yields a single chunk with no
// page number. Blank pages are kept so numbering stays aligned.
func Pages(text, source, domain string) []chunk.Chunk {
	if !strings.Contains(text, pageBreak) {
		c := chunk.New(chunk.Preprocess(text), source, -1)
		c.Metadata.Domain = domain
		return []chunk.Chunk{c}
	}
	raw := strings.Split(text, pageBreak)
	out := make([]chunk.Chunk, 0, len(raw))
	for i, p := range raw {
		c := chunk.New(chunk.Preprocess(p), source, i)
		c.Metadata.Domain = domain
		out = append(out, c)
	}
	return out
}

func readRecords(path, domain string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []chunk.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		c := chunk.Chunk{Content: r.Content, Metadata: chunk.NormalizeMetadata(r.Metadata)}
		if c.Metadata.Source == chunk.UnknownSource {
			c.Metadata.Source = filepath.ToSlash(path)
		}
		if c.Metadata.Domain == "" {
			c.Metadata.Domain = domain
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return out, nil
}
