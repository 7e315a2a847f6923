package ingestion

import (
	"context"

	"cot-sentiment-lab/internal/domain"
)

// ReportSource provides the raw report rows for one calendar year.
type ReportSource interface {
	// Fetch returns the year's rows in source order. Implementations return an
	// error wrapping ErrReportUnavailable when no report exists for the year.
	// Header and column validation happens inside the source.
	Fetch(ctx context.Context, year int) ([]domain.RawReportRow, error)
}
