package calls

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]CallEvent // key: tenant_id|provider_call_id
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]CallEvent{}} }

func key(tenantID, callID string) string { return tenantID + "|" + callID }

func (r *MemoryRepo) Get(ctx context.Context, tenantID, providerCallID string) (CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[key(tenantID, providerCallID)]
	if !ok {
		return CallEvent{}, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (r *MemoryRepo) FindByCallID(ctx context.Context, providerCallID string) (CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found CallEvent
		n     int
	)
	for _, e := range r.rows {
		if e.ProviderCallID == providerCallID {
			found = e
			n++
		}
	}
	switch n {
	case 0:
		return CallEvent{}, ErrNotFound
	case 1:
		return cloneEvent(found), nil
	default:
		return CallEvent{}, ErrAmbiguousCallID
	}
}

func (r *MemoryRepo) Create(ctx context.Context, e CallEvent) error {
	if e.TenantID == "" || e.ProviderCallID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(e.TenantID, e.ProviderCallID)
	if _, exists := r.rows[k]; exists {
		return ErrDuplicate
	}
	r.rows[k] = cloneEvent(e)
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, e CallEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(e.TenantID, e.ProviderCallID)
	if _, exists := r.rows[k]; !exists {
		return ErrNotFound
	}
	r.rows[k] = cloneEvent(e)
	return nil
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallEvent
	for _, e := range r.rows {
		if e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneEvent(e CallEvent) CallEvent {
	out := e
	if e.ExtractedData != nil {
		out.ExtractedData = make(map[string]any, len(e.ExtractedData))
		for k, v := range e.ExtractedData {
			out.ExtractedData[k] = v
		}
	}
	if e.AIResponses != nil {
		out.AIResponses = append(json.RawMessage(nil), e.AIResponses...)
	}
	return out
}
