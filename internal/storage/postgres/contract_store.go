package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// ContractStore implements storage.ContractStore using PostgreSQL.
type ContractStore struct {
	pool *Pool
}

// NewContractStore creates a new ContractStore.
func NewContractStore(pool *Pool) *ContractStore {
	return &ContractStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ContractStore = (*ContractStore)(nil)

// Insert adds a new contract. Returns ErrDuplicateKey if id or name exists.
func (s *ContractStore) Insert(ctx context.Context, c *domain.Contract) error {
	if c == nil || c.ID == "" || c.Name == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO contracts (id, name, sector, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, c.ID, c.Name, c.Sector, c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

// GetByName retrieves a contract by its display name. Returns ErrNotFound if not exists.
func (s *ContractStore) GetByName(ctx context.Context, name string) (*domain.Contract, error) {
	query := `
		SELECT id, name, sector, created_at
		FROM contracts
		WHERE name = $1
	`

	c, err := scanContract(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get contract by name: %w", err)
	}
	return c, nil
}

// GetByID retrieves a contract by its identifier. Returns ErrNotFound if not exists.
func (s *ContractStore) GetByID(ctx context.Context, id string) (*domain.Contract, error) {
	query := `
		SELECT id, name, sector, created_at
		FROM contracts
		WHERE id = $1
	`

	c, err := scanContract(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get contract by id: %w", err)
	}
	return c, nil
}

// List retrieves all contracts, ordered by name ASC.
func (s *ContractStore) List(ctx context.Context) ([]*domain.Contract, error) {
	query := `
		SELECT id, name, sector, created_at
		FROM contracts
		ORDER BY name ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract row: %w", err)
		}
		contracts = append(contracts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract rows: %w", err)
	}

	return contracts, nil
}

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var c domain.Contract
	if err := row.Scan(&c.ID, &c.Name, &c.Sector, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
