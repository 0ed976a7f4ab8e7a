package tenants

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("tenants: not found")
	ErrInvalidArgument  = errors.New("tenants: invalid argument")
	ErrPhoneTaken       = errors.New("tenants: phone already assigned")
	ErrMembershipAbsent = errors.New("tenants: membership not found")
)

// Repository is the persistence contract for tenants and memberships.
// Tenant CRUD itself lives elsewhere; this subsystem only reads tenants and
// writes calendar credentials.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Tenant, error)
	GetByPhone(ctx context.Context, phone string) (Tenant, error)
	GetMembership(ctx context.Context, tenantID, userID string) (Membership, error)

	// UpdateCalendar replaces stored calendar credentials. nil clears them.
	UpdateCalendar(ctx context.Context, tenantID string, creds *CalendarCredentials) error
}
