package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// RefreshRunStore implements storage.RefreshRunStore using PostgreSQL.
type RefreshRunStore struct {
	pool *Pool
}

// NewRefreshRunStore creates a new RefreshRunStore.
func NewRefreshRunStore(pool *Pool) *RefreshRunStore {
	return &RefreshRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)

// runErrorJSON is the JSONB shape of a RunError in refresh_log.errors.
type runErrorJSON struct {
	Year     int    `json:"year"`
	Stage    string `json:"stage"`
	Contract string `json:"contract,omitempty"`
	Batch    int    `json:"batch,omitempty"`
	Message  string `json:"message"`
}

// Insert appends a run. Returns ErrDuplicateKey if the run ID exists.
func (s *RefreshRunStore) Insert(ctx context.Context, r *domain.RefreshRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	details := make([]runErrorJSON, len(r.Errors))
	for i, e := range r.Errors {
		details[i] = runErrorJSON(e)
	}
	errorsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}

	query := `
		INSERT INTO refresh_log (
			id, run_at, start_year, end_year,
			weekly_rows, metric_rows, rows_written, rows_dropped,
			status, error, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		r.RunAt,
		r.StartYear,
		r.EndYear,
		r.WeeklyRows,
		r.MetricRows,
		r.RowsWritten(),
		r.RowsDropped,
		r.Status(),
		r.ErrorSummary(),
		errorsJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert refresh run: %w", err)
	}
	return nil
}

// Latest retrieves the most recent run by run_at. Returns ErrNotFound if none.
func (s *RefreshRunStore) Latest(ctx context.Context) (*domain.RefreshRun, error) {
	query := `
		SELECT id, run_at, start_year, end_year, weekly_rows, metric_rows, rows_dropped, errors
		FROM refresh_log
		ORDER BY run_at DESC
		LIMIT 1
	`

	var r domain.RefreshRun
	var errorsJSON []byte
	err := s.pool.QueryRow(ctx, query).Scan(
		&r.ID,
		&r.RunAt,
		&r.StartYear,
		&r.EndYear,
		&r.WeeklyRows,
		&r.MetricRows,
		&r.RowsDropped,
		&errorsJSON,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest refresh run: %w", err)
	}

	var details []runErrorJSON
	if err := json.Unmarshal(errorsJSON, &details); err != nil {
		return nil, fmt.Errorf("unmarshal run errors: %w", err)
	}
	for _, d := range details {
		r.Errors = append(r.Errors, domain.RunError(d))
	}
	r.RunAt = r.RunAt.UTC()

	return &r, nil
}
