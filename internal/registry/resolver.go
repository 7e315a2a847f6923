// Package registry maps contract display names to stable identifiers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/storage"
)

// ErrEmptyName is returned when a name is blank after trimming.
var ErrEmptyName = errors.New("empty contract name")

// Resolver resolves contract names to identifiers, creating contracts on first sighting.
// The name cache is owned by a single backfill run.
type Resolver struct {
	store  storage.ContractStore
	sector string
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	byName map[string]string // trimmed name -> contract id
}

// NewResolver creates a Resolver backed by store.
// New contracts get defaultSector, or domain.DefaultSector when empty.
func NewResolver(store storage.ContractStore, defaultSector string) *Resolver {
	if defaultSector == "" {
		defaultSector = domain.DefaultSector
	}
	return &Resolver{
		store:  store,
		sector: defaultSector,
		now:    time.Now,
		newID:  uuid.NewString,
		byName: make(map[string]string),
	}
}

// Load populates the cache with every contract already in the store.
func (r *Resolver) Load(ctx context.Context) error {
	contracts, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range contracts {
		r.byName[c.Name] = c.ID
	}
	return nil
}

// Resolve returns the identifier for name, creating the contract if it is unseen.
// Name equality is evaluated after trimming whitespace.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return id, nil
	}

	// Another run may have created it since Load
	existing, err := r.store.GetByName(ctx, name)
	switch {
	case err == nil:
		r.byName[name] = existing.ID
		return existing.ID, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("get contract %q: %w", name, err)
	}

	c := &domain.Contract{
		ID:        r.newID(),
		Name:      name,
		Sector:    r.sector,
		CreatedAt: r.now().UnixMilli(),
	}
	if err := r.store.Insert(ctx, c); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return "", fmt.Errorf("create contract %q: %w", name, err)
		}
		// Lost a creation race: the winner's row is authoritative
		existing, getErr := r.store.GetByName(ctx, name)
		if getErr != nil {
			return "", fmt.Errorf("create contract %q: %w", name, errors.Join(err, getErr))
		}
		c.ID = existing.ID
	}

	r.byName[name] = c.ID
	return c.ID, nil
}

// Known returns the number of cached names.
func (r *Resolver) Known() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
