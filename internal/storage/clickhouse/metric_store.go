package clickhouse

import (
	"context"
	"fmt"
	"time"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// MetricStore implements storage.MetricStore using ClickHouse.
//
// cot_metrics is a ReplacingMergeTree keyed by (contract_id, report_date) with
// a version column. Every write carries a fresh version and reads use FINAL,
// so the latest write for a key wins.
type MetricStore struct {
	conn *Conn
	now  func() time.Time
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(conn *Conn) *MetricStore {
	return &MetricStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// UpsertBulk writes records in a single insert block.
// Later versions replace earlier ones for the same key.
func (s *MetricStore) UpsertBulk(ctx context.Context, records []*domain.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r == nil || r.ContractID == "" || r.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO cot_metrics (
			contract_id, report_date,
			comm_net, ls_net, ss_net,
			comm_index, ls_index, ss_index,
			wow_comm_delta, wow_ls_delta, wow_ss_delta,
			version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, r := range records {
		// Pass nil values directly for Nullable columns
		err = batch.Append(
			r.ContractID, r.ReportDate,
			r.CommNet, r.LSNet, r.SSNet,
			r.CommIndex, r.LSIndex, r.SSIndex,
			r.WoWCommDelta, r.WoWLSDelta, r.WoWSSDelta,
			version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByContract retrieves all records for a contract, ordered by report_date ASC.
func (s *MetricStore) GetByContract(ctx context.Context, contractID string) ([]*domain.MetricRecord, error) {
	query := `
		SELECT
			contract_id, report_date,
			comm_net, ls_net, ss_net,
			comm_index, ls_index, ss_index,
			wow_comm_delta, wow_ls_delta, wow_ss_delta
		FROM cot_metrics FINAL
		WHERE contract_id = ?
		ORDER BY report_date ASC
	`

	rows, err := s.conn.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("query metrics by contract: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// GetByDateRange retrieves records for a contract within [from, to] (inclusive).
func (s *MetricStore) GetByDateRange(ctx context.Context, contractID string, from, to time.Time) ([]*domain.MetricRecord, error) {
	query := `
		SELECT
			contract_id, report_date,
			comm_net, ls_net, ss_net,
			comm_index, ls_index, ss_index,
			wow_comm_delta, wow_ls_delta, wow_ss_delta
		FROM cot_metrics FINAL
		WHERE contract_id = ? AND report_date >= ? AND report_date <= ?
		ORDER BY report_date ASC
	`

	rows, err := s.conn.Query(ctx, query, contractID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query metrics by date range: %w", err)
	}
	defer rows.Close()

	return scanMetrics(rows)
}

// scanMetrics scans multiple rows.
func scanMetrics(rows chRows) ([]*domain.MetricRecord, error) {
	var records []*domain.MetricRecord

	for rows.Next() {
		var r domain.MetricRecord

		err := rows.Scan(
			&r.ContractID, &r.ReportDate,
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
