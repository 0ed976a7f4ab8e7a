package tenants

import (
	"strings"
	"time"
)

// Tenant is the multi-tenant boundary: one business, one assistant, many calls.
//
// Invariant: Phone uniquely identifies a tenant (compared on digits only, see NormalizePhone).
type Tenant struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Phone    string `json:"phone" db:"phone"`
	Email    string `json:"email,omitempty" db:"email"`
	Address  string `json:"address,omitempty" db:"address"`
	Website  string `json:"website,omitempty" db:"website"`
	Industry string `json:"industry" db:"industry"`

	Status Status `json:"status" db:"status"`

	// Language is a BCP-47 tag such as es-ES. Empty means the platform default.
	Language string `json:"language,omitempty" db:"language"`
	Timezone string `json:"timezone,omitempty" db:"timezone"`

	// Hours is free text as entered by the owner ("Mon-Fri 9:00-18:00").
	Hours    string   `json:"hours,omitempty" db:"hours"`
	Services []string `json:"services,omitempty" db:"services"`

	// Calendar is nil until the owner connects a calendar.
	Calendar *CalendarCredentials `json:"-" db:"-"`

	PlanID string `json:"plan_id,omitempty" db:"plan_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// CanReceiveCalls reports whether provider webhooks may be processed for this tenant.
func (t Tenant) CanReceiveCalls() bool {
	return t.Status == StatusActive || t.Status == StatusTrial
}

// CalendarConnected reports whether usable calendar credentials are stored.
func (t Tenant) CalendarConnected() bool {
	return t.Calendar != nil && t.Calendar.RefreshToken != ""
}

// DefaultTimezone applies when a tenant has none or an unknown one.
const DefaultTimezone = "Europe/Madrid"

// Location returns the tenant's timezone.
func (t Tenant) Location() *time.Location {
	for _, name := range []string{t.Timezone, DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// CalendarCredentials are the OAuth tokens for the tenant's external calendar.
type CalendarCredentials struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	CalendarID   string    `json:"calendar_id,omitempty"`
}

// Membership binds a user to a tenant with a role.
type Membership struct {
	TenantID string           `json:"tenant_id" db:"tenant_id"`
	UserID   string           `json:"user_id" db:"user_id"`
	Role     string           `json:"role" db:"role"`
	Status   MembershipStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipInvited MembershipStatus = "invited"
	MembershipRevoked MembershipStatus = "revoked"
)

func (m Membership) Active() bool { return m.Status == MembershipActive }

// NormalizePhone reduces a phone number to its digits so that "+34 600-111-222",
// "34600111222" and "tel:+34600111222" compare equal.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
