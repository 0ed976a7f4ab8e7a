package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block provisioning on audit failures.
type Event struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	Type     EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// ExternalAssistantID is the platform assistant the event concerns.
	ExternalAssistantID string `json:"external_assistant_id,omitempty" db:"external_assistant_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventAssistantProvisioned   EventType = "assistant_provisioned"
	EventAssistantUpdated       EventType = "assistant_updated"
	EventAssistantDeprovisioned EventType = "assistant_deprovisioned"
	EventRequiredFieldsUpdated  EventType = "required_fields_updated"
	EventToolsReconciled        EventType = "tools_reconciled"
	EventCalendarConnected      EventType = "calendar_connected"
	EventCalendarDisconnected   EventType = "calendar_disconnected"
)

// Actor identifies who triggered an action. Zero value means the system itself.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
