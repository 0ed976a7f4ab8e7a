package booking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory appointment repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Appointment // key: id

	// FailCreate makes Create return this error.
	FailCreate error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Appointment{}} }

func (r *MemoryRepo) Create(ctx context.Context, a Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate != nil {
		return r.FailCreate
	}
	if a.ID == "" || a.TenantID == "" {
		return ErrInvalidArgument
	}
	r.rows[a.ID] = cloneAppointment(a)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.TenantID != tenantID {
		return Appointment{}, ErrNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepo) ListByDate(ctx context.Context, tenantID, date string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.rows {
		if a.TenantID == tenantID && a.Date == date && a.Status == StatusConfirmed {
			out = append(out, cloneAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *MemoryRepo) SetCalendarEventID(ctx context.Context, tenantID, id, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.TenantID != tenantID {
		return ErrNotFound
	}
	a.CalendarEventID = eventID
	r.rows[id] = a
	return nil
}

func (r *MemoryRepo) CountCreated(ctx context.Context, tenantID string, from, to time.Time, source Source) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.rows {
		if a.TenantID != tenantID || a.Status != StatusConfirmed {
			continue
		}
		if source != "" && a.Source != source {
			continue
		}
		if a.CreatedAt.Before(from) || !a.CreatedAt.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}

func cloneAppointment(a Appointment) Appointment {
	out := a
	if a.Custom != nil {
		out.Custom = make(map[string]any, len(a.Custom))
		for k, v := range a.Custom {
			out.Custom[k] = v
		}
	}
	return out
}
