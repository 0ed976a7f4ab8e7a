package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory assistant repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	rows  map[string]Assistant // key: tenant_id
	saves int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Assistant{}} }

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[tenantID]
	if !ok {
		return Assistant{}, ErrNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepo) Save(ctx context.Context, a Assistant) (Assistant, error) {
	if a.TenantID == "" {
		return Assistant{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if prev, ok := r.rows[a.TenantID]; ok {
		a.ID = prev.ID
		a.CreatedAt = prev.CreatedAt
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	r.rows[a.TenantID] = clone(a)
	r.saves++
	return clone(a), nil
}

// Saves returns how many times Save succeeded.
func (r *MemoryRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}
