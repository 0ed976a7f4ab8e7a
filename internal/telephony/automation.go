package telephony

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/calls"
)

// fields is a loosely typed webhook body. Form-automation tools send whatever
// their mapping produces, so every getter accepts several spellings and types.
type fields map[string]any

func (f fields) str(keys ...string) string {
	for _, k := range keys {
		switch v := f[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func (f fields) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := f[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if n, err := v.Float64(); err == nil {
				return n, true
			}
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC1123Z}

func (f fields) time(keys ...string) *time.Time {
	s := f.str(keys...)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		ts := time.Unix(n, 0).UTC()
		return &ts
	}
	return nil
}

func (f fields) object(keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := f[k].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func (f fields) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if json.Valid([]byte(s)) {
				return json.RawMessage(s)
			}
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			return b
		}
	}
	return nil
}

func decodeFields(body []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("telephony: empty body")
	}
	return f, nil
}

// callID returns the provider call identifier under any supported spelling.
func (f fields) callID() string {
	return f.str("call_id", "callId", "CallSid", "call_sid", "provider_call_id", "id")
}

// ToUpdate maps a generic call webhook. The provider field, when present, picks
// the status table; otherwise the automation vocabulary applies.
func (f fields) ToUpdate(tenantID string) calls.Update {
	provider := calls.Provider(strings.ToLower(f.str("provider", "source")))
	switch provider {
	case calls.ProviderTwilio, calls.ProviderVapi:
	default:
		provider = calls.ProviderAutomation
	}

	u := calls.Update{
		TenantID:       tenantID,
		Provider:       provider,
		ProviderCallID: f.callID(),
		From:           nonEmpty(f.str("from", "from_number", "caller", "From")),
		To:             nonEmpty(f.str("to", "to_number", "called", "To")),
		StartedAt:      f.time("started_at", "startedAt", "start_time", "timestamp"),
		EndedAt:        f.time("ended_at", "endedAt", "end_time"),
		Transcript:     nonEmpty(f.str("transcript")),
		Summary:        nonEmpty(f.str("summary")),
		Sentiment:      nonEmpty(f.str("sentiment")),
		RecordingURL:   nonEmpty(f.str("recording_url", "recordingUrl")),
		EndedReason:    nonEmpty(f.str("ended_reason", "endedReason")),
		ExtractedData:  f.object("extracted_data", "extractedData"),
		AIResponses:    f.raw("ai_responses", "aiResponses"),
	}
	if d, ok := calls.ParseDirection(f.str("direction", "Direction")); ok {
		u.Direction = &d
	}
	if raw := f.str("status", "call_status", "CallStatus"); raw != "" {
		st := calls.MapStatus(provider, raw)
		u.Status = &st
		u.RawStatus = &raw
	}
	if n, ok := f.num("duration", "duration_seconds", "durationSeconds", "CallDuration"); ok && n >= 0 {
		d := int(math.Round(n))
		u.DurationSeconds = &d
	}
	if n, ok := f.num("cost", "price"); ok {
		c := math.Abs(n)
		u.Cost = &c
	}
	if n, ok := f.num("tokens_used", "tokensUsed", "tokens"); ok && n >= 0 {
		t := int(n)
		u.TokensUsed = &t
	}
	return u
}

// ToBookingRequest maps an appointment-request webhook body.
func (f fields) ToBookingRequest(tenantID string) booking.Request {
	req := booking.Request{
		TenantID: tenantID,
		Name:     f.str("name", "clientName", "client_name", "nombre"),
		Email:    f.str("email", "clientEmail", "client_email", "correo"),
		Phone:    f.str("phone", "clientPhone", "client_phone", "telefono"),
		Service:  f.str("service", "servicio"),
		Date:     f.str("date", "fecha"),
		Time:     f.str("time", "hora"),
		Notes:    f.str("notes", "notas"),
		CallID:   f.str("call_id", "callId"),
		Source:   booking.SourceWebhook,
	}
	if custom := f.object("custom", "custom_fields"); len(custom) > 0 {
		req.Custom = custom
	}
	return req
}
