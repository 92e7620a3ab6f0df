// Package aggregator persists snapshots of the aggregated analytics stats
// to PostgreSQL so dashboards and counters survive restarts of the
// analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
)

// Schema keeps the headline counters in columns for ad-hoc SQL and the
// full stats document in data.
const Schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id                BIGSERIAL PRIMARY KEY,
    total_queries     BIGINT NOT NULL,
    no_evidence_count BIGINT NOT NULL,
    degraded_count    BIGINT NOT NULL,
    p95_latency_ms    BIGINT NOT NULL,
    data              JSONB NOT NULL,
    captured_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at ON analytics_snapshots (captured_at DESC);`

// StatsSource reports the current aggregate.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

type Store struct {
	db        *postgres.Client
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewStore keeps snapshots for seven days.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:        db,
		retention: 7 * 24 * time.Hour,
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots
			(total_queries, no_evidence_count, degraded_count, p95_latency_ms, data, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stats.TotalQueries, stats.NoEvidenceCount, stats.DegradedCount, stats.P95LatencyMs,
		data, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved",
		"total_queries", stats.TotalQueries,
		"no_evidence", stats.NoEvidenceCount,
	)
	return nil
}

// Prune deletes snapshots older than the retention window.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < $1`,
		s.now().UTC().Add(-s.retention),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning analytics snapshots: %w", err)
	}
	return res.RowsAffected()
}

// LatestSnapshot returns nil, nil if no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// Point is one row of the snapshot history.
type Point struct {
	CapturedAt time.Time                 `json:"captured_at"`
	Stats      analytics.AggregatedStats `json:"stats"`
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Point, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, captured_at FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var (
			data []byte
			p    Point
		)
		if err := rows.Scan(&data, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &p.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "captured_at", p.CapturedAt, "error", err)
			continue
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// StartPeriodicSave snapshots src every interval when anything was
// recorded since the previous save, prunes expired rows, and saves once
// more when ctx is cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, src StatsSource, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var last analytics.AggregatedStats
		for {
			select {
			case <-ticker.C:
				stats := src.Stats()
				if !changed(last, stats) {
					continue
				}
				if err := s.SaveSnapshot(ctx, stats); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
					continue
				}
				last = stats
				if n, err := s.Prune(ctx); err != nil {
					s.logger.Warn("snapshot pruning failed", "error", err)
				} else if n > 0 {
					s.logger.Info("expired snapshots pruned", "deleted", n)
				}
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(final, src.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", s.retention)
}

func changed(prev, cur analytics.AggregatedStats) bool {
	return prev.TotalQueries != cur.TotalQueries ||
		prev.ChunksIngested != cur.ChunksIngested ||
		prev.Rebuilds != cur.Rebuilds
}
