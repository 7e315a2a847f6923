package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// MetricStore implements storage.MetricStore using PostgreSQL.
type MetricStore struct {
	pool *Pool
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(pool *Pool) *MetricStore {
	return &MetricStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

const metricColumns = `
	contract_id, report_date,
	comm_net, ls_net, ss_net,
	comm_index, ls_index, ss_index,
	wow_comm_delta, wow_ls_delta, wow_ss_delta
`

// UpsertBulk writes records in one transaction. Existing keys are overwritten.
func (s *MetricStore) UpsertBulk(ctx context.Context, records []*domain.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r == nil || r.ContractID == "" || r.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO cot_metrics (` + metricColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (contract_id, report_date) DO UPDATE SET
			comm_net       = EXCLUDED.comm_net,
			ls_net         = EXCLUDED.ls_net,
			ss_net         = EXCLUDED.ss_net,
			comm_index     = EXCLUDED.comm_index,
			ls_index       = EXCLUDED.ls_index,
			ss_index       = EXCLUDED.ss_index,
			wow_comm_delta = EXCLUDED.wow_comm_delta,
			wow_ls_delta   = EXCLUDED.wow_ls_delta,
			wow_ss_delta   = EXCLUDED.wow_ss_delta,
			updated_at     = NOW()
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.ContractID,
			r.ReportDate,
			r.CommNet, r.LSNet, r.SSNet,
			r.CommIndex, r.LSIndex, r.SSIndex,
			r.WoWCommDelta, r.WoWLSDelta, r.WoWSSDelta,
		)
	}

	if err := s.pool.sendBatchTx(ctx, batch); err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

// GetByContract retrieves all records for a contract, ordered by report_date ASC.
func (s *MetricStore) GetByContract(ctx context.Context, contractID string) ([]*domain.MetricRecord, error) {
	query := `
		SELECT ` + metricColumns + `
		FROM cot_metrics
		WHERE contract_id = $1
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("get metrics by contract: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// GetByDateRange retrieves records for a contract within [from, to] (inclusive).
func (s *MetricStore) GetByDateRange(ctx context.Context, contractID string, from, to time.Time) ([]*domain.MetricRecord, error) {
	query := `
		SELECT ` + metricColumns + `
		FROM cot_metrics
		WHERE contract_id = $1 AND report_date >= $2 AND report_date <= $3
		ORDER BY report_date ASC
	`

	rows, err := s.pool.Query(ctx, query, contractID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get metrics by date range: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// scanMetrics scans multiple rows into a slice of MetricRecord.
func scanMetrics(rows pgx.Rows) ([]*domain.MetricRecord, error) {
	var records []*domain.MetricRecord

	for rows.Next() {
		var r domain.MetricRecord

		err := rows.Scan(
			&r.ContractID,
			&r.ReportDate,
			&r.CommNet, &r.LSNet, &r.SSNet,
			&r.CommIndex, &r.LSIndex, &r.SSIndex,
			&r.WoWCommDelta, &r.WoWLSDelta, &r.WoWSSDelta,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		r.ReportDate = r.ReportDate.UTC()

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	return records, nil
}
