package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS policy_chunks (
    uid         TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    page        INTEGER,
    domain      TEXT NOT NULL DEFAULT '',
    position    INTEGER NOT NULL,
    content     TEXT NOT NULL,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS policy_chunks_source_idx ON policy_chunks (source, position);
CREATE TABLE IF NOT EXISTS ingest_requests (
    idempotency_key TEXT PRIMARY KEY,
    source          TEXT NOT NULL,
    chunks          INTEGER NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// IngestRecord is a previously accepted ingestion request.
type IngestRecord struct {
	Source    string
	Chunks    int
	CreatedAt time.Time
}

// Store persists chunks by source document. Re-ingesting a source
// replaces all of its chunks.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "chunk-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating chunk schema: %w", err)
	}
	return nil
}

// ReplaceSource deletes the stored chunks of source and inserts chunks in
// order, skipping duplicate UIDs. A non-empty idempotencyKey is recorded in
// the same transaction; a key that is already recorded fails with
// ErrIdempotencyConflict. It returns the number of chunks written.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks []chunk.Chunk, idempotencyKey string) (int, error) {
	written := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if idempotencyKey != "" {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO ingest_requests (idempotency_key, source, chunks) VALUES ($1, $2, $3)
				ON CONFLICT (idempotency_key) DO NOTHING`,
				idempotencyKey, source, len(chunks))
			if err != nil {
				return fmt.Errorf("recording idempotency key: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already in use")
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM policy_chunks WHERE source = $1`, source); err != nil {
			return fmt.Errorf("deleting chunks of %s: %w", source, err)
		}
		for i, c := range chunks {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO policy_chunks (uid, source, page, domain, position, content)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (uid) DO NOTHING`,
				c.UID(), source, nullablePage(c.Metadata.Page), c.Metadata.Domain, i, c.Content)
			if err != nil {
				return fmt.Errorf("inserting chunk %d of %s: %w", i, source, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("source stored", "source", source, "chunks", written)
	return written, nil
}

// FindIngest returns the record for idempotencyKey, or nil if none.
func (s *Store) FindIngest(ctx context.Context, idempotencyKey string) (*IngestRecord, error) {
	var r IngestRecord
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT source, chunks, created_at FROM ingest_requests WHERE idempotency_key = $1`,
		idempotencyKey,
	).Scan(&r.Source, &r.Chunks, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying idempotency key: %w", err)
	}
	return &r, nil
}

// Load reads the whole stored corpus ordered by source and position.
func (s *Store) Load(ctx context.Context) ([]chunk.Chunk, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT content, source, page, domain FROM policy_chunks ORDER BY source, position`)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	var out []chunk.Chunk
	for rows.Next() {
		var (
			c    chunk.Chunk
			page sql.NullInt64
		)
		if err := rows.Scan(&c.Content, &c.Metadata.Source, &page, &c.Metadata.Domain); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if page.Valid {
			p := int(page.Int64)
			c.Metadata.Page = &p
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}
	return chunk.Validate(out)
}

func nullablePage(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
