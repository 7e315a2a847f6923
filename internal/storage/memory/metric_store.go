package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.RWMutex
	data map[domain.PositionKey]*domain.MetricRecord // keyed by (contract_id, report_date)
}

// NewMetricStore creates a new in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{
		data: make(map[domain.PositionKey]*domain.MetricRecord),
	}
}

// UpsertBulk writes records atomically. Existing keys are overwritten.
func (s *MetricStore) UpsertBulk(_ context.Context, records []*domain.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r == nil || r.ContractID == "" || r.ReportDate.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		recordCopy := *r
		s.data[r.Key()] = &recordCopy
	}
	return nil
}

// GetByContract retrieves all records for a contract, ordered by report_date ASC.
func (s *MetricStore) GetByContract(_ context.Context, contractID string) ([]*domain.MetricRecord, error) {
	return s.filter(func(r *domain.MetricRecord) bool {
		return r.ContractID == contractID
	}), nil
}

// GetByDateRange retrieves records for a contract within [from, to] (inclusive).
func (s *MetricStore) GetByDateRange(_ context.Context, contractID string, from, to time.Time) ([]*domain.MetricRecord, error) {
	return s.filter(func(r *domain.MetricRecord) bool {
		return r.ContractID == contractID && !r.ReportDate.Before(from) && !r.ReportDate.After(to)
	}), nil
}

func (s *MetricStore) filter(match func(*domain.MetricRecord) bool) []*domain.MetricRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricRecord
	for _, r := range s.data {
		if match(r) {
			recordCopy := *r
			result = append(result, &recordCopy)
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

// Count returns the number of stored records.
func (s *MetricStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.MetricStore = (*MetricStore)(nil)
