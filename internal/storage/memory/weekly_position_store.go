package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// WeeklyPositionStore is an in-memory implementation of storage.WeeklyPositionStore.
type WeeklyPositionStore struct {
	mu   sync.RWMutex
	data map[domain.PositionKey]*domain.WeeklyPosition // keyed by (contract_id, report_date)
}

// NewWeeklyPositionStore creates a new in-memory weekly position store.
func NewWeeklyPositionStore() *WeeklyPositionStore {
	return &WeeklyPositionStore{
		data: make(map[domain.PositionKey]*domain.WeeklyPosition),
	}
}

// UpsertBulk writes positions atomically. Existing keys are overwritten.
func (s *WeeklyPositionStore) UpsertBulk(_ context.Context, positions []*domain.WeeklyPosition) error {
	if len(positions) == 0 {
		return nil
	}

	// Validate the whole batch before touching data
	for _, p := range positions {
		if p == nil || p.ContractID == "" || p.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range positions {
		posCopy := *p
		posCopy.ContractName = ""
		s.data[p.Key()] = &posCopy
	}
	return nil
}

// GetByContract retrieves all positions for a contract, ordered by report_date ASC.
func (s *WeeklyPositionStore) GetByContract(_ context.Context, contractID string) ([]*domain.WeeklyPosition, error) {
	return s.filter(func(p *domain.WeeklyPosition) bool {
		return p.ContractID == contractID
	}), nil
}

// GetByDateRange retrieves positions for a contract within [from, to] (inclusive).
func (s *WeeklyPositionStore) GetByDateRange(_ context.Context, contractID string, from, to time.Time) ([]*domain.WeeklyPosition, error) {
	return s.filter(func(p *domain.WeeklyPosition) bool {
		return p.ContractID == contractID && !p.ReportDate.Before(from) && !p.ReportDate.After(to)
	}), nil
}

// LatestBefore retrieves up to limit most recent positions dated before the given date.
func (s *WeeklyPositionStore) LatestBefore(_ context.Context, contractID string, before time.Time, limit int) ([]*domain.WeeklyPosition, error) {
	if limit <= 0 {
		return nil, nil
	}

	result := s.filter(func(p *domain.WeeklyPosition) bool {
		return p.ContractID == contractID && p.ReportDate.Before(before)
	})
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// filter returns copies of matching positions, ordered by report_date ASC.
func (s *WeeklyPositionStore) filter(match func(*domain.WeeklyPosition) bool) []*domain.WeeklyPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WeeklyPosition
	for _, p := range s.data {
		if match(p) {
			posCopy := *p
			result = append(result, &posCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReportDate.Equal(result[j].ReportDate) {
			return result[i].ReportDate.Before(result[j].ReportDate)
		}
		return result[i].ContractID < result[j].ContractID
	})

	return result
}

// Count returns the number of stored positions.
func (s *WeeklyPositionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.WeeklyPositionStore = (*WeeklyPositionStore)(nil)
