// Package postgres stores asset outcome records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitepreview/internal/ledger"
)

const defaultTable = "asset_outcomes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for outcome rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes ledger records into Postgres.
type Store struct {
	pool  execCloser
	table string
}

var _ ledger.Recorder = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool builds a Store from an existing pool.
func NewWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record inserts one outcome row. It assumes a table schema like:
// CREATE TABLE asset_outcomes (
//
//	id TEXT PRIMARY KEY,
//	run_id TEXT NOT NULL,
//	url TEXT NOT NULL,
//	file TEXT NOT NULL,
//	status TEXT NOT NULL,
//	bytes BIGINT NOT NULL,
//	compressed_bytes BIGINT NOT NULL,
//	hash TEXT,
//	blob_uri TEXT,
//	error TEXT,
//	duration_ms BIGINT NOT NULL,
//	recorded_at TIMESTAMPTZ NOT NULL
//
// );
func (s *Store) Record(ctx context.Context, rec ledger.Record) error {
	if s == nil || s.pool == nil {
		return errors.New("ledger store is not configured")
	}
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	url,
	file,
	status,
	bytes,
	compressed_bytes,
	hash,
	blob_uri,
	error,
	duration_ms,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	args := []any{
		rec.ID,
		rec.RunID,
		rec.URL,
		rec.File,
		rec.Status,
		rec.Bytes,
		rec.CompressedBytes,
		rec.Hash,
		rec.BlobURI,
		rec.Error,
		rec.Duration.Milliseconds(),
		rec.RecordedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert asset outcome: %w", err)
	}
	return nil
}
