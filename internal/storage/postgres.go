package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_kv (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ledger_log (
    id         UUID PRIMARY KEY,
    stream     TEXT NOT NULL,
    position   BIGSERIAL,
    record     BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_log_stream_position_idx ON ledger_log (stream, position);
`

// Postgres persists values in ledger_kv and streams in the insert-only ledger_log table.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed backend.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables used by the backend when they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, schema)
	return err
}

// Get fetches a value.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := p.db.QueryRow(ctx, `SELECT value FROM ledger_kv WHERE key = $1`, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put upserts a value.
func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.Exec(ctx, `INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	return err
}

// Delete removes a value.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM ledger_kv WHERE key = $1`, key)
	return err
}

// Append inserts a log record; position is assigned by the sequence.
func (p *Postgres) Append(ctx context.Context, stream string, record []byte) error {
	_, err := p.db.Exec(ctx, `INSERT INTO ledger_log (id, stream, record) VALUES ($1, $2, $3)`, uuid.New(), stream, record)
	return err
}

// Records returns the stream ordered by insert position.
func (p *Postgres) Records(ctx context.Context, stream string) ([][]byte, error) {
	rows, err := p.db.Query(ctx, `SELECT record FROM ledger_log WHERE stream = $1 ORDER BY position`, stream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Streams lists every stream with at least one record.
func (p *Postgres) Streams(ctx context.Context) ([]string, error) {
	rows, err := p.db.Query(ctx, `SELECT DISTINCT stream FROM ledger_log ORDER BY stream`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return nil, err
		}
		out = append(out, stream)
	}
	return out, rows.Err()
}
