package telephony

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"receptionist-platform/internal/calls"
	"receptionist-platform/internal/toolcalls"
)

// Server message types sent by the voice platform to /webhooks/vapi.
const (
	vapiStatusUpdate    = "status-update"
	vapiEndOfCallReport = "end-of-call-report"
	vapiToolCalls       = "tool-calls"
)

type vapiEnvelope struct {
	Message vapiMessage `json:"message"`
}

type vapiMessage struct {
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	EndedReason string     `json:"endedReason"`
	Call        vapiCall   `json:"call"`
	ToolCalls   []vapiTool `json:"toolCallList"`

	StartedAt       *time.Time `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationSeconds *float64   `json:"durationSeconds"`
	Cost            *float64   `json:"cost"`
	CostBreakdown   *struct {
		LLMPromptTokens     int `json:"llmPromptTokens"`
		LLMCompletionTokens int `json:"llmCompletionTokens"`
	} `json:"costBreakdown"`

	Transcript   string          `json:"transcript"`
	Summary      string          `json:"summary"`
	RecordingURL string          `json:"recordingUrl"`
	Messages     json.RawMessage `json:"messages"`
	Artifact     *struct {
		Transcript   string          `json:"transcript"`
		RecordingURL string          `json:"recordingUrl"`
		Messages     json.RawMessage `json:"messages"`
	} `json:"artifact"`
	Analysis *struct {
		Summary           string          `json:"summary"`
		StructuredData    map[string]any  `json:"structuredData"`
		SuccessEvaluation json.RawMessage `json:"successEvaluation"`
	} `json:"analysis"`
}

type vapiCall struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	AssistantID string `json:"assistantId"`
	Customer    struct {
		Number string `json:"number"`
	} `json:"customer"`
	PhoneNumber struct {
		Number string `json:"number"`
	} `json:"phoneNumber"`
}

type vapiTool struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

func parseVapi(body []byte) (vapiMessage, error) {
	var env vapiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return vapiMessage{}, err
	}
	if env.Message.Type == "" {
		return vapiMessage{}, fmt.Errorf("telephony: vapi message without type")
	}
	return env.Message, nil
}

// toolCalls converts the platform tool-call list.
func (m vapiMessage) toolCalls() []toolcalls.Call {
	out := make([]toolcalls.Call, 0, len(m.ToolCalls))
	for _, t := range m.ToolCalls {
		out = append(out, toolcalls.Call{ID: t.ID, Name: t.Function.Name, Arguments: t.Function.Arguments})
	}
	return out
}

// direction derives the call direction from the platform call type
// ("inboundPhoneCall", "outboundPhoneCall", "webCall").
func (c vapiCall) direction() *calls.Direction {
	if d, ok := calls.ParseDirection(c.Type); ok {
		return &d
	}
	return nil
}

// ToUpdate maps a status-update or end-of-call-report onto a call update.
// Only fields present in the message are set.
func (m vapiMessage) ToUpdate(tenantID string) calls.Update {
	u := calls.Update{
		TenantID:       tenantID,
		Provider:       calls.ProviderVapi,
		ProviderCallID: m.Call.ID,
		Direction:      m.Call.direction(),
		StartedAt:      m.StartedAt,
		EndedAt:        m.EndedAt,
		Cost:           m.Cost,
	}

	// Inbound: the customer calls the business number.
	from, to := m.Call.Customer.Number, m.Call.PhoneNumber.Number
	if u.Direction != nil && *u.Direction == calls.DirectionOutbound {
		from, to = to, from
	}
	u.From, u.To = nonEmpty(from), nonEmpty(to)

	switch m.Type {
	case vapiStatusUpdate:
		raw := firstNonEmpty(m.Status, m.Call.Status)
		if raw == "" {
			break
		}
		// "ended" alone says nothing about the outcome; the reason does.
		st := calls.MapStatus(calls.ProviderVapi, raw)
		if reason, ok := calls.MapEndedReason(m.EndedReason); ok {
			st = reason
		}
		u.Status = &st
		u.RawStatus = calls.Ptr(raw)
		u.EndedReason = nonEmpty(m.EndedReason)

	case vapiEndOfCallReport:
		st := calls.StatusCompleted
		if reason, ok := calls.MapEndedReason(m.EndedReason); ok {
			st = reason
		}
		u.Status = &st
		u.RawStatus = calls.Ptr("ended")
		u.EndedReason = nonEmpty(m.EndedReason)

		transcript, recording, messages := m.Transcript, m.RecordingURL, m.Messages
		if a := m.Artifact; a != nil {
			transcript = firstNonEmpty(a.Transcript, transcript)
			recording = firstNonEmpty(a.RecordingURL, recording)
			if len(a.Messages) > 0 {
				messages = a.Messages
			}
		}
		u.Transcript = nonEmpty(transcript)
		u.RecordingURL = nonEmpty(recording)
		if len(messages) > 0 && string(messages) != "null" {
			u.AIResponses = messages
		}

		summary := m.Summary
		if a := m.Analysis; a != nil {
			summary = firstNonEmpty(a.Summary, summary)
			if len(a.StructuredData) > 0 {
				u.ExtractedData = a.StructuredData
				if s, ok := a.StructuredData["sentiment"].(string); ok {
					u.Sentiment = nonEmpty(s)
				}
			}
		}
		u.Summary = nonEmpty(summary)
	}

	if m.DurationSeconds != nil {
		n := int(math.Round(*m.DurationSeconds))
		u.DurationSeconds = &n
	} else if m.StartedAt != nil && m.EndedAt != nil && m.EndedAt.After(*m.StartedAt) {
		n := int(m.EndedAt.Sub(*m.StartedAt).Round(time.Second) / time.Second)
		u.DurationSeconds = &n
	}
	if cb := m.CostBreakdown; cb != nil {
		n := cb.LLMPromptTokens + cb.LLMCompletionTokens
		u.TokensUsed = &n
	}
	return u
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
