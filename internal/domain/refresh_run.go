package domain

import (
	"fmt"
	"strings"
	"time"
)

// Refresh run statuses.
const (
	RunStatusCompleted = "completed" // no errors
	RunStatusPartial   = "partial"   // at least one per-unit error
)

// RunError is one attributable failure recorded during a backfill.
type RunError struct {
	Year     int
	Stage    string // state in which the failure happened
	Contract string // contract name or ID, empty if not contract-scoped
	Batch    int    // 1-based batch number, 0 if not batch-scoped
	Message  string
}

// String formats the error as "<year>: <message>" with optional context.
func (e RunError) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", e.Year, e.Stage)
	if e.Contract != "" {
		fmt.Fprintf(&b, " contract=%q", e.Contract)
	}
	if e.Batch > 0 {
		fmt.Fprintf(&b, " batch=%d", e.Batch)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

// RefreshRun is an append-only record of one backfill invocation.
// Corresponds to refresh_log table in PostgreSQL.
type RefreshRun struct {
	ID          string
	RunAt       time.Time
	StartYear   int
	EndYear     int
	WeeklyRows  int // raw rows written
	MetricRows  int // derived rows written
	RowsDropped int // malformed input rows dropped at normalization
	Errors      []RunError
}

// RowsWritten returns the total rows written to both fact tables.
func (r *RefreshRun) RowsWritten() int {
	return r.WeeklyRows + r.MetricRows
}

// Status returns RunStatusCompleted when no errors were recorded.
func (r *RefreshRun) Status() string {
	if len(r.Errors) == 0 {
		return RunStatusCompleted
	}
	return RunStatusPartial
}

// ErrorSummary joins all errors with "; ". Returns nil when there are none.
func (r *RefreshRun) ErrorSummary() *string {
	if len(r.Errors) == 0 {
		return nil
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.String()
	}
	s := strings.Join(parts, "; ")
	return &s
}
