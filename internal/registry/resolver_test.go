package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
	"cot-sentiment-lab/internal/storage/memory"
)

func TestResolver_TrimmedNamesShareIdentifier(t *testing.T) {
	store := memory.NewContractStore()
	r := NewResolver(store, "")
	ctx := context.Background()

	padded, err := r.Resolve(ctx, " Gold ")
	require.NoError(t, err)

	again, err := r.Resolve(ctx, " Gold ")
	require.NoError(t, err)

	plain, err := r.Resolve(ctx, "Gold")
	require.NoError(t, err)

	assert.Equal(t, padded, again)
	assert.Equal(t, padded, plain)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Gold", list[0].Name)
	assert.Equal(t, domain.DefaultSector, list[0].Sector)
}

func TestResolver_LoadSeesExistingContracts(t *testing.T) {
	store := memory.NewContractStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &domain.Contract{ID: "existing-id", Name: "Silver"}))

	r := NewResolver(store, "Metals")
	require.NoError(t, r.Load(ctx))
	assert.Equal(t, 1, r.Known())

	id, err := r.Resolve(ctx, "Silver")
	require.NoError(t, err)
	assert.Equal(t, "existing-id", id)

	newID, err := r.Resolve(ctx, "Copper")
	require.NoError(t, err)
	assert.NotEqual(t, "existing-id", newID)

	created, err := store.GetByID(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "Metals", created.Sector)
	assert.Equal(t, 2, r.Known())
}

func TestResolver_SeparateResolversAgree(t *testing.T) {
	store := memory.NewContractStore()
	ctx := context.Background()

	first, err := NewResolver(store, "").Resolve(ctx, "Wheat")
	require.NoError(t, err)

	// A second run that never called Load still finds the stored contract
	second, err := NewResolver(store, "").Resolve(ctx, "Wheat ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolver_EmptyName(t *testing.T) {
	r := NewResolver(memory.NewContractStore(), "")

	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

// racingStore reports a duplicate on insert, as if a concurrent writer won.
type racingStore struct {
	*memory.ContractStore
	winner *domain.Contract
	misses int
}

func (s *racingStore) GetByName(ctx context.Context, name string) (*domain.Contract, error) {
	if s.misses > 0 {
		s.misses--
		return nil, storage.ErrNotFound
	}
	return s.ContractStore.GetByName(ctx, name)
}

func (s *racingStore) Insert(ctx context.Context, _ *domain.Contract) error {
	if err := s.ContractStore.Insert(ctx, s.winner); err != nil {
		return err
	}
	return storage.ErrDuplicateKey
}

func TestResolver_CreationRaceUsesWinner(t *testing.T) {
	store := &racingStore{
		ContractStore: memory.NewContractStore(),
		winner:        &domain.Contract{ID: "winner-id", Name: "Corn"},
		misses:        1,
	}
	r := NewResolver(store, "")

	id, err := r.Resolve(context.Background(), "Corn")
	require.NoError(t, err)
	assert.Equal(t, "winner-id", id)
}

// failingStore fails every insert.
type failingStore struct {
	*memory.ContractStore
}

func (s *failingStore) Insert(context.Context, *domain.Contract) error {
	return errors.New("connection reset")
}

func TestResolver_CreateFailureIsReported(t *testing.T) {
	r := NewResolver(&failingStore{ContractStore: memory.NewContractStore()}, "")

	_, err := r.Resolve(context.Background(), "Oats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `create contract "Oats"`)
	assert.Equal(t, 0, r.Known())
}
