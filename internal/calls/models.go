package calls

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrDuplicate       = errors.New("calls: call already recorded")
	// ErrAmbiguousCallID means more than one tenant holds the provider call id.
	ErrAmbiguousCallID = errors.New("calls: call id matches more than one tenant")
)

// CallEvent is the normalized record of one telephony or voice session.
//
// Multi-tenant invariant: TenantID is required on every row, and
// (TenantID, ProviderCallID) is unique.
type CallEvent struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	Provider       Provider  `json:"provider" db:"provider"`
	ProviderCallID string    `json:"call_id" db:"provider_call_id"`
	Direction      Direction `json:"direction" db:"direction"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status Status `json:"status" db:"status"`
	// RawStatus is the provider's own vocabulary, kept for debugging mappings.
	RawStatus   string `json:"raw_status,omitempty" db:"raw_status"`
	EndedReason string `json:"ended_reason,omitempty" db:"ended_reason"`

	DurationSeconds int        `json:"duration" db:"duration_seconds"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	Transcript    string          `json:"transcript,omitempty" db:"transcript"`
	Summary       string          `json:"summary,omitempty" db:"summary"`
	Sentiment     string          `json:"sentiment,omitempty" db:"sentiment"`
	RecordingURL  string          `json:"recording_url,omitempty" db:"recording_url"`
	ExtractedData map[string]any  `json:"extracted_data,omitempty" db:"extracted_data"`
	AIResponses   json.RawMessage `json:"ai_responses,omitempty" db:"ai_responses"`

	Cost       float64 `json:"cost" db:"cost"`
	TokensUsed int     `json:"tokens_used" db:"tokens_used"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection accepts provider spellings ("outbound-api", "outboundPhoneCall", ...).
func ParseDirection(raw string) (Direction, bool) {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(r, "outbound"):
		return DirectionOutbound, true
	case strings.HasPrefix(r, "inbound"):
		return DirectionInbound, true
	}
	return "", false
}

// Update carries the fields present in one webhook delivery. Nil fields are left
// untouched so out-of-order deliveries never erase data.
type Update struct {
	TenantID       string
	Provider       Provider
	ProviderCallID string

	Direction       *Direction
	From            *string
	To              *string
	Status          *Status
	RawStatus       *string
	EndedReason     *string
	DurationSeconds *int
	StartedAt       *time.Time
	EndedAt         *time.Time
	Transcript      *string
	Summary         *string
	Sentiment       *string
	RecordingURL    *string
	Cost            *float64
	TokensUsed      *int

	// ExtractedData keys are merged into the stored map.
	ExtractedData map[string]any
	AIResponses   json.RawMessage
}

func (u Update) apply(e *CallEvent) {
	if u.Provider != "" {
		e.Provider = u.Provider
	}
	setIf(&e.Direction, u.Direction)
	setIf(&e.From, u.From)
	setIf(&e.To, u.To)
	setIf(&e.Status, u.Status)
	setIf(&e.RawStatus, u.RawStatus)
	setIf(&e.EndedReason, u.EndedReason)
	setIf(&e.DurationSeconds, u.DurationSeconds)
	setIf(&e.Transcript, u.Transcript)
	setIf(&e.Summary, u.Summary)
	setIf(&e.Sentiment, u.Sentiment)
	setIf(&e.RecordingURL, u.RecordingURL)
	setIf(&e.Cost, u.Cost)
	setIf(&e.TokensUsed, u.TokensUsed)
	if u.StartedAt != nil {
		ts := *u.StartedAt
		e.StartedAt = &ts
	}
	if u.EndedAt != nil {
		ts := *u.EndedAt
		e.EndedAt = &ts
	}
	if len(u.ExtractedData) > 0 {
		if e.ExtractedData == nil {
			e.ExtractedData = map[string]any{}
		}
		for k, v := range u.ExtractedData {
			e.ExtractedData[k] = v
		}
	}
	if len(u.AIResponses) > 0 {
		e.AIResponses = append(json.RawMessage(nil), u.AIResponses...)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr is a small helper for building Updates.
func Ptr[T any](v T) *T { return &v }
