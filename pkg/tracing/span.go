// Package tracing times one pipeline query as a tree of spans (expand,
// retrieve, rerank, compress, generate). Spans travel in context.Context;
// a finished tree can be flattened into stage timings or written to slog.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed step. Fields are safe to read once End has returned
// for the span and all of its children.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Children []*Span

	mu    sync.Mutex
	attrs []slog.Attr
	ended bool
}

// StartSpan opens the root span of a trace.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without one the new
// span is a root with an empty trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the innermost open span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.Duration = time.Since(s.Start)
		s.ended = true
	}
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// StageMillis sums the durations of direct children by name.
func (s *Span) StageMillis() map[string]float64 {
	s.mu.Lock()
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	out := make(map[string]float64, len(children))
	for _, c := range children {
		c.mu.Lock()
		out[c.Name] += float64(c.Duration.Microseconds()) / 1000
		c.mu.Unlock()
	}
	return out
}

// Log writes one debug record per span, depth first. Each record carries
// the slash-joined path from the root, e.g. "query/rerank".
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, s.Name)
}

func (s *Span) log(logger *slog.Logger, path string) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", path),
		slog.Float64("duration_ms", float64(s.Duration.Microseconds())/1000),
	}, s.attrs...)
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	logger.LogAttrs(context.Background(), slog.LevelDebug, "span", attrs...)
	for _, c := range children {
		c.log(logger, path+"/"+c.Name)
	}
}
