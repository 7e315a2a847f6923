package memory

import (
	"context"
	"sync"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// RefreshRunStore is an in-memory implementation of storage.RefreshRunStore.
// Runs are kept in insertion order.
type RefreshRunStore struct {
	mu   sync.RWMutex
	runs []*domain.RefreshRun
	ids  map[string]struct{}
}

// NewRefreshRunStore creates a new in-memory refresh run store.
func NewRefreshRunStore() *RefreshRunStore {
	return &RefreshRunStore{
		ids: make(map[string]struct{}),
	}
}

// Insert appends a run. Returns ErrDuplicateKey if the run ID exists.
func (s *RefreshRunStore) Insert(_ context.Context, r *domain.RefreshRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.ids[r.ID] = struct{}{}
	s.runs = append(s.runs, copyRun(r))
	return nil
}

// Latest retrieves the most recent run by run_at. Returns ErrNotFound if none.
func (s *RefreshRunStore) Latest(_ context.Context) (*domain.RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.RunAt.Before(latest.RunAt) {
			latest = r
		}
	}
	return copyRun(latest), nil
}

// All returns every run in insertion order.
func (s *RefreshRunStore) All() []*domain.RefreshRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RefreshRun, len(s.runs))
	for i, r := range s.runs {
		result[i] = copyRun(r)
	}
	return result
}

func copyRun(r *domain.RefreshRun) *domain.RefreshRun {
	runCopy := *r
	runCopy.Errors = append([]domain.RunError(nil), r.Errors...)
	return &runCopy
}

var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)
