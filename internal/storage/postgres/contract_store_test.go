package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

func TestContractStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContractStore(pool)
	ctx := context.Background()

	contract := &domain.Contract{
		ID:        "0b6f3a0e-6c1b-4c43-9d7e-1f1f6a0d2c11",
		Name:      "GOLD - COMMODITY EXCHANGE INC.",
		Sector:    domain.DefaultSector,
		CreatedAt: 1700000000000,
	}

	require.NoError(t, store.Insert(ctx, contract))

	byName, err := store.GetByName(ctx, contract.Name)
	require.NoError(t, err)
	assert.Equal(t, contract, byName)

	byID, err := store.GetByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contract, byID)
}

func TestContractStore_InsertDuplicateName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContractStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.Contract{ID: "a", Name: "Gold", Sector: domain.DefaultSector}))

	err := store.Insert(ctx, &domain.Contract{ID: "b", Name: "Gold", Sector: domain.DefaultSector})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestContractStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContractStore(pool)

	_, err := store.GetByName(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestContractStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContractStore(pool)
	ctx := context.Background()

	for _, c := range []*domain.Contract{
		{ID: "3", Name: "Wheat", Sector: "Grains"},
		{ID: "1", Name: "Corn", Sector: "Grains"},
	} {
		require.NoError(t, store.Insert(ctx, c))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Corn", list[0].Name)
	assert.Equal(t, "Wheat", list[1].Name)
}
