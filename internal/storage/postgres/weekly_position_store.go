package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// WeeklyPositionStore implements storage.WeeklyPositionStore using PostgreSQL.
type WeeklyPositionStore struct {
	pool *Pool
}

// NewWeeklyPositionStore creates a new WeeklyPositionStore.
func NewWeeklyPositionStore(pool *Pool) *WeeklyPositionStore {
	return &WeeklyPositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WeeklyPositionStore = (*WeeklyPositionStore)(nil)

const weeklyPositionColumns = `
	contract_id, report_date, prod_class,
	comm_long, comm_short, ls_long, ls_short, ss_long, ss_short,
	open_interest
`

// UpsertBulk writes positions in one transaction. Existing keys are overwritten.
func (s *WeeklyPositionStore) UpsertBulk(ctx context.Context, positions []*domain.WeeklyPosition) error {
	if len(positions) == 0 {
		return nil
	}

	for _, p := range positions {
		if p == nil || p.ContractID == "" || p.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO cot_weekly (` + weeklyPositionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (contract_id, report_date) DO UPDATE SET
			prod_class    = EXCLUDED.prod_class,
			comm_long     = EXCLUDED.comm_long,
			comm_short    = EXCLUDED.comm_short,
			ls_long       = EXCLUDED.ls_long,
			ls_short      = EXCLUDED.ls_short,
			ss_long       = EXCLUDED.ss_long,
			ss_short      = EXCLUDED.ss_short,
			open_interest = EXCLUDED.open_interest,
			updated_at    = NOW()
	`

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(query,
			p.ContractID,
			p.ReportDate,
			p.ProdClass,
			p.CommLong, p.CommShort,
			p.LSLong, p.LSShort,
			p.SSLong, p.SSShort,
			p.OpenInterest,
		)
	}

	if err := s.pool.sendBatchTx(ctx, batch); err != nil {
		return fmt.Errorf("upsert weekly positions: %w", err)
	}
	return nil
}

// GetByContract retrieves all positions for a contract, ordered by report_date ASC.
func (s *WeeklyPositionStore) GetByContract(ctx context.Context, contractID string) ([]*domain.WeeklyPosition, error) {
	query := `
		SELECT ` + weeklyPositionColumns + `
		FROM cot_weekly
		WHERE contract_id = $1
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("get weekly positions by contract: %w", err)
	}
	defer rows.Close()

	return scanWeeklyPositions(rows)
}

// GetByDateRange retrieves positions for a contract within [from, to] (inclusive).
func (s *WeeklyPositionStore) GetByDateRange(ctx context.Context, contractID string, from, to time.Time) ([]*domain.WeeklyPosition, error) {
	query := `
		SELECT ` + weeklyPositionColumns + `
		FROM cot_weekly
		WHERE contract_id = $1 AND report_date >= $2 AND report_date <= $3
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, contractID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get weekly positions by date range: %w", err)
	}
	defer rows.Close()

	return scanWeeklyPositions(rows)
}

// LatestBefore retrieves up to limit most recent positions dated before the given date,
// ordered by report_date ASC.
func (s *WeeklyPositionStore) LatestBefore(ctx context.Context, contractID string, before time.Time, limit int) ([]*domain.WeeklyPosition, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT * FROM (
			SELECT ` + weeklyPositionColumns + `
			FROM cot_weekly
			WHERE contract_id = $1 AND report_date < $2
			ORDER BY report_date DESC
			LIMIT $3
		) latest
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, contractID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest weekly positions: %w", err)
	}
	defer rows.Close()

	return scanWeeklyPositions(rows)
}

// scanWeeklyPositions scans multiple rows into a slice of WeeklyPosition.
func scanWeeklyPositions(rows pgx.Rows) ([]*domain.WeeklyPosition, error) {
	var positions []*domain.WeeklyPosition

	for rows.Next() {
		var p domain.WeeklyPosition

		err := rows.Scan(
			&p.ContractID,
			&p.ReportDate,
			&p.ProdClass,
			&p.CommLong, &p.CommShort,
			&p.LSLong, &p.LSShort,
			&p.SSLong, &p.SSShort,
			&p.OpenInterest,
		)
		if err != nil {
			return nil, fmt.Errorf("scan weekly position row: %w", err)
		}
		p.ReportDate = p.ReportDate.UTC()

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly position rows: %w", err)
	}

	return positions, nil
}
