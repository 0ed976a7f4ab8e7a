package booking

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("booking: not found")
	ErrInvalidArgument = errors.New("booking: invalid argument")
)

// Appointment is the authoritative record of a booking. Calendar and email are
// enrichments and may be missing.
type Appointment struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	ClientName  string `json:"client_name" db:"client_name"`
	ClientEmail string `json:"client_email,omitempty" db:"client_email"`
	ClientPhone string `json:"client_phone,omitempty" db:"client_phone"`
	Service     string `json:"service,omitempty" db:"service"`

	// Date is YYYY-MM-DD and Time is HH:MM, both in the tenant's timezone.
	Date string `json:"date" db:"date"`
	Time string `json:"time" db:"time"`

	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
	Notes           string `json:"notes,omitempty" db:"notes"`

	// Custom carries tenant-defined required fields collected by the assistant.
	Custom map[string]any `json:"custom,omitempty" db:"custom"`

	Source Source `json:"source" db:"source"`
	// CallID links bookings made during a call to the call event.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Status          Status `json:"status" db:"status"`
	CalendarEventID string `json:"calendar_event_id,omitempty" db:"calendar_event_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Source string

const (
	SourceWebhook   Source = "webhook"
	SourceAssistant Source = "assistant"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// DefaultDuration is the slot length used for availability and calendar events.
const DefaultDuration = 30 * time.Minute

// Start returns the appointment start in loc.
func (a Appointment) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
}

func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes > 0 {
		return time.Duration(a.DurationMinutes) * time.Minute
	}
	return DefaultDuration
}

// ValidationError lists every missing or malformed field.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "booking: validation failed: " + strings.Join(e.Errors, "; ")
}
