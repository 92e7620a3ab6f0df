// Package analytics tracks how the question-answering service is used.
// Services publish QueryEvent and IndexEvent values to Kafka; the analytics
// service consumes them into an in-memory Aggregator and snapshots the
// aggregated stats to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventQuery      EventType = "query"
	EventNoEvidence EventType = "no_evidence"
	EventDegraded   EventType = "degraded"
	EventFailed     EventType = "failed"
	EventIngest     EventType = "ingest"
	EventRebuild    EventType = "rebuild"
)

// IsQuery reports whether t is one of the query event types.
func (t EventType) IsQuery() bool {
	switch t {
	case EventQuery, EventNoEvidence, EventDegraded, EventFailed:
		return true
	}
	return false
}

// QueryEvent describes one answered (or attempted) question. Failed
// queries carry EventFailed and the error text.
type QueryEvent struct {
	Type       EventType `json:"type"`
	QueryID    string    `json:"query_id"`
	Query      string    `json:"query"`
	Variants   int       `json:"variants"`
	Sources    int       `json:"sources"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Snapshot   uint64    `json:"snapshot_version"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	ErrMessage string    `json:"error,omitempty"`
}

// IndexEvent describes a stored source document or a pipeline rebuild.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source,omitempty"`
	Chunks    int       `json:"chunks"`
	Snapshot  uint64    `json:"snapshot_version,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryEventType classifies a finished query.
func QueryEventType(sources int, degraded bool) EventType {
	switch {
	case sources == 0:
		return EventNoEvidence
	case degraded:
		return EventDegraded
	default:
		return EventQuery
	}
}
