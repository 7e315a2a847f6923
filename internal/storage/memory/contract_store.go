package memory

import (
	"context"
	"sort"
	"sync"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// ContractStore is an in-memory implementation of storage.ContractStore.
type ContractStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Contract // keyed by id
	byName map[string]*domain.Contract // keyed by name (unique)
}

// NewContractStore creates a new in-memory contract store.
func NewContractStore() *ContractStore {
	return &ContractStore{
		byID:   make(map[string]*domain.Contract),
		byName: make(map[string]*domain.Contract),
	}
}

// Insert adds a new contract. Returns ErrDuplicateKey if id or name exists.
func (s *ContractStore) Insert(_ context.Context, c *domain.Contract) error {
	if c == nil || c.ID == "" || c.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byName[c.Name]; exists {
		return storage.ErrDuplicateKey
	}

	contractCopy := *c
	s.byID[c.ID] = &contractCopy
	s.byName[c.Name] = &contractCopy
	return nil
}

// GetByName retrieves a contract by its display name. Returns ErrNotFound if not exists.
func (s *ContractStore) GetByName(_ context.Context, name string) (*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.byName[name]
	if !exists {
		return nil, storage.ErrNotFound
	}

	contractCopy := *c
	return &contractCopy, nil
}

// GetByID retrieves a contract by its identifier. Returns ErrNotFound if not exists.
func (s *ContractStore) GetByID(_ context.Context, id string) (*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	contractCopy := *c
	return &contractCopy, nil
}

// List retrieves all contracts, ordered by name ASC.
func (s *ContractStore) List(_ context.Context) ([]*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Contract, 0, len(s.byID))
	for _, c := range s.byID {
		contractCopy := *c
		result = append(result, &contractCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result, nil
}

var _ storage.ContractStore = (*ContractStore)(nil)
