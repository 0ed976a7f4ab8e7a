package calls

import (
	"context"
	"time"
)

// Repository persists call events.
type Repository interface {
	Get(ctx context.Context, tenantID, providerCallID string) (CallEvent, error)
	// FindByCallID looks a call up by provider call id across tenants.
	// It returns ErrAmbiguousCallID when the id is held by more than one tenant.
	FindByCallID(ctx context.Context, providerCallID string) (CallEvent, error)

	// Create returns ErrDuplicate if (tenant_id, provider_call_id) already exists.
	Create(ctx context.Context, e CallEvent) error
	Update(ctx context.Context, e CallEvent) error

	// ListByTenant returns calls created in [from, to). Zero bounds are open.
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]CallEvent, error)
}
