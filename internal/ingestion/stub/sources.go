package stub

import (
	"context"
	"sync"

	"cot-sentiment-lab/internal/domain"
)

// ReportSource returns fixed in-memory report rows per year for testing.
// Implements ingestion.ReportSource interface.
type ReportSource struct {
	mu       sync.Mutex
	rows     map[int][]domain.RawReportRow // keyed by year
	failures map[int]error                 // keyed by year
	calls    []int
}

// NewReportSource creates a new stub report source with no years.
func NewReportSource() *ReportSource {
	return &ReportSource{
		rows:     make(map[int][]domain.RawReportRow),
		failures: make(map[int]error),
	}
}

// SetYear replaces the rows returned for year.
func (s *ReportSource) SetYear(year int, rows []domain.RawReportRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[year] = append([]domain.RawReportRow(nil), rows...)
}

// FailYear makes Fetch return err for year. A nil err clears the failure.
func (s *ReportSource) FailYear(year int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, year)
		return
	}
	s.failures[year] = err
}

// Fetch returns a copy of the rows for year, or the injected failure.
// Years without rows return an empty slice.
func (s *ReportSource) Fetch(_ context.Context, year int) ([]domain.RawReportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, year)
	if err, ok := s.failures[year]; ok {
		return nil, err
	}
	return append([]domain.RawReportRow(nil), s.rows[year]...), nil
}

// Calls returns the years fetched so far, in call order.
func (s *ReportSource) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}
