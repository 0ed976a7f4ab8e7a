package booking

import (
	"context"
	"time"
)

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, a Appointment) error
	Get(ctx context.Context, tenantID, id string) (Appointment, error)
	// ListByDate returns confirmed appointments on date (YYYY-MM-DD).
	ListByDate(ctx context.Context, tenantID, date string) ([]Appointment, error)
	SetCalendarEventID(ctx context.Context, tenantID, id, eventID string) error
	// CountCreated counts confirmed appointments created in [from, to). An empty
	// source counts every source.
	CountCreated(ctx context.Context, tenantID string, from, to time.Time, source Source) (int, error)
}
