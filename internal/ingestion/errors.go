package ingestion

import (
	"errors"
	"fmt"

	"cot-sentiment-lab/internal/domain"
)

// Failure taxonomy. Every per-unit failure wraps exactly one of these.
var (
	// ErrRetrieval means the yearly report could not be fetched. The year fails.
	ErrRetrieval = errors.New("retrieval failure")

	// ErrReportUnavailable means the source has no report for the year yet.
	// The year completes with zero rows and no error entry.
	ErrReportUnavailable = errors.New("report unavailable")

	// ErrIdentifierResolution means a contract name could not be mapped to an
	// identifier. That contract's rows are skipped for the year.
	ErrIdentifierResolution = errors.New("identifier resolution failure")

	// ErrHistorySeed means prior-year history could not be read for a contract.
	// That contract's metrics are skipped for the year; raw rows are still written.
	ErrHistorySeed = errors.New("history seed failure")

	// ErrWriteBatch means one upsert batch failed. Other batches are unaffected.
	ErrWriteBatch = errors.New("write batch failure")
)

// ErrRunInProgress is returned when a backfill is started while another is running.
var ErrRunInProgress = errors.New("backfill already running")

// StageError attributes a failure to a year, a state and optionally a contract or batch.
type StageError struct {
	Year     int
	Stage    State
	Contract string // contract name, empty if not contract-scoped
	Batch    int    // 1-based, 0 if not batch-scoped
	Err      error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("year %d %s", e.Year, e.Stage)
	if e.Contract != "" {
		msg += fmt.Sprintf(" contract=%q", e.Contract)
	}
	if e.Batch > 0 {
		msg += fmt.Sprintf(" batch=%d", e.Batch)
	}
	return msg + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RunError converts the failure into its run log form.
func (e *StageError) RunError() domain.RunError {
	return domain.RunError{
		Year:     e.Year,
		Stage:    string(e.Stage),
		Contract: e.Contract,
		Batch:    e.Batch,
		Message:  e.Err.Error(),
	}
}

// kindOf returns a short label for the taxonomy sentinel err wraps.
func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrRetrieval):
		return "retrieval"
	case errors.Is(err, ErrIdentifierResolution):
		return "identifier_resolution"
	case errors.Is(err, ErrHistorySeed):
		return "history_seed"
	case errors.Is(err, ErrWriteBatch):
		return "write_batch"
	default:
		return "other"
	}
}
