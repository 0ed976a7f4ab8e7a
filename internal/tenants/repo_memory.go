package tenants

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory tenant repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu          sync.Mutex
	tenants     map[string]Tenant
	memberships map[string]Membership // key: tenant_id|user_id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tenants:     map[string]Tenant{},
		memberships: map[string]Membership{},
	}
}

// Put inserts or replaces a tenant, enforcing phone uniqueness.
func (r *MemoryRepo) Put(t Tenant) error {
	if t.ID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := NormalizePhone(t.Phone); p != "" {
		for id, other := range r.tenants {
			if id != t.ID && NormalizePhone(other.Phone) == p {
				return ErrPhoneTaken
			}
		}
	}
	r.tenants[t.ID] = t
	return nil
}

func (r *MemoryRepo) PutMembership(m Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[m.TenantID+"|"+m.UserID] = m
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) GetByPhone(ctx context.Context, phone string) (Tenant, error) {
	p := NormalizePhone(phone)
	if p == "" {
		return Tenant{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tenants {
		if NormalizePhone(t.Phone) == p {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (r *MemoryRepo) GetMembership(ctx context.Context, tenantID, userID string) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memberships[tenantID+"|"+userID]
	if !ok {
		return Membership{}, ErrMembershipAbsent
	}
	return m, nil
}

func (r *MemoryRepo) UpdateCalendar(ctx context.Context, tenantID string, creds *CalendarCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	if creds != nil {
		cp := *creds
		creds = &cp
	}
	t.Calendar = creds
	r.tenants[tenantID] = t
	return nil
}
