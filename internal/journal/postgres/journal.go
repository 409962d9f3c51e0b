// Package postgres persists the processing journal in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for journal rows.
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

// Journal writes one audit row per finished artifact into Postgres.
type Journal struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed Journal using the provided config.
func New(ctx context.Context, cfg Config) (*Journal, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("journal.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "job_journal"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &Journal{pool: pool, table: table}, nil
}

// NewWithPool constructs a Journal from an existing pool (primarily for
// testing).
func NewWithPool(pool execCloser, table string) (*Journal, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "job_journal"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Journal{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (j *Journal) Close() {
	if j == nil || j.pool == nil {
		return
	}
	j.pool.Close()
}

// Record inserts one journal row.
func (j *Journal) Record(ctx context.Context, entry history.JournalEntry) error {
	if j == nil || j.pool == nil {
		return fmt.Errorf("journal is not configured")
	}
	if entry.JobID == "" {
		return fmt.Errorf("entry job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	site,
	partition_id,
	bucket,
	mod_time,
	processed_at,
	duration_ms,
	status
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, j.table)

	args := []any{
		entry.JobID,
		entry.Site,
		entry.PartitionID,
		entry.Bucket,
		entry.ModTime,
		entry.ProcessedAt,
		entry.DurationMs,
		entry.Status,
	}
	if _, err := j.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}
