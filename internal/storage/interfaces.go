package storage

import (
	"context"
	"time"

	"cot-sentiment-lab/internal/domain"
)

// ContractStore provides access to contracts storage.
type ContractStore interface {
	// Insert adds a new contract. Returns ErrDuplicateKey if id or name exists.
	Insert(ctx context.Context, c *domain.Contract) error

	// GetByName retrieves a contract by its display name. Returns ErrNotFound if not exists.
	GetByName(ctx context.Context, name string) (*domain.Contract, error)

	// GetByID retrieves a contract by its identifier. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Contract, error)

	// List retrieves all contracts, ordered by name ASC.
	List(ctx context.Context) ([]*domain.Contract, error)
}

// WeeklyPositionStore provides access to cot_weekly storage.
// ContractName is not persisted; reads return it empty.
type WeeklyPositionStore interface {
	// UpsertBulk writes positions atomically, keyed by (contract_id, report_date).
	// Existing rows are overwritten with the submitted values.
	UpsertBulk(ctx context.Context, positions []*domain.WeeklyPosition) error

	// GetByContract retrieves all positions for a contract, ordered by report_date ASC.
	GetByContract(ctx context.Context, contractID string) ([]*domain.WeeklyPosition, error)

	// GetByDateRange retrieves positions for a contract within [from, to] (inclusive).
	GetByDateRange(ctx context.Context, contractID string, from, to time.Time) ([]*domain.WeeklyPosition, error)

	// LatestBefore retrieves up to limit positions dated strictly before the
	// given date, the most recent ones, ordered by report_date ASC.
	LatestBefore(ctx context.Context, contractID string, before time.Time, limit int) ([]*domain.WeeklyPosition, error)
}

// MetricStore provides access to cot_metrics storage.
type MetricStore interface {
	// UpsertBulk writes records atomically, keyed by (contract_id, report_date).
	// Existing rows are overwritten with the submitted values.
	UpsertBulk(ctx context.Context, records []*domain.MetricRecord) error

	// GetByContract retrieves all records for a contract, ordered by report_date ASC.
	GetByContract(ctx context.Context, contractID string) ([]*domain.MetricRecord, error)

	// GetByDateRange retrieves records for a contract within [from, to] (inclusive).
	GetByDateRange(ctx context.Context, contractID string, from, to time.Time) ([]*domain.MetricRecord, error)
}

// RefreshRunStore provides access to the append-only refresh_log.
type RefreshRunStore interface {
	// Insert appends a run. Returns ErrDuplicateKey if the run ID exists.
	Insert(ctx context.Context, r *domain.RefreshRun) error

	// Latest retrieves the most recent run by run_at. Returns ErrNotFound if none.
	Latest(ctx context.Context) (*domain.RefreshRun, error)
}
