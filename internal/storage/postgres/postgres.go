// Package postgres implements the COT stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cot-sentiment-lab/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// Backfills are sequential; a small pool is enough for the run plus the
// status endpoint.
const (
	defaultMaxConns        = 4
	defaultMaxConnIdleTime = 5 * time.Minute
)

// NewPool creates a new Postgres connection pool and verifies it with a ping.
// Pool limits given in the DSN (pool_max_conns) take precedence over defaults.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if !dsnSetsMaxConns(config) {
		config.MaxConns = defaultMaxConns
	}
	config.MaxConnIdleTime = defaultMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

func dsnSetsMaxConns(config *pgxpool.Config) bool {
	return strings.Contains(config.ConnString(), "pool_max_conns")
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// sendBatchTx runs batch in a single transaction: either every queued
// statement commits or none does.
func (p *Pool) sendBatchTx(ctx context.Context, batch *pgx.Batch) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return err != nil && pgErrorCode(err) == pgErrUniqueViolation
}

// isForeignKeyError checks if error references a missing contract.
func isForeignKeyError(err error) bool {
	return err != nil && pgErrorCode(err) == pgErrForeignKeyViolation
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapWriteError attaches storage sentinels to constraint violations.
func mapWriteError(err error) error {
	switch {
	case isForeignKeyError(err):
		return fmt.Errorf("%w: unknown contract: %v", storage.ErrNotFound, err)
	case isDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err)
	default:
		return err
	}
}
