package toolcalls

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/internal/provisioning"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/pkg/logger"

	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownTool = errors.New("toolcalls: unknown tool")

// Booker is the booking surface the callback tools need.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Result, error)
	CheckAvailability(ctx context.Context, t tenants.Tenant, rawDate, rawTime string) (booking.Availability, error)
}

// Call is one tool invocation requested by the voice platform.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the per-call answer. Result is what the assistant reads back.
type Result struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type Dispatcher struct {
	assistants assistant.Repository
	booker     Booker
	clock      func() time.Time
}

func New(assistants assistant.Repository, booker Booker) *Dispatcher {
	return &Dispatcher{assistants: assistants, booker: booker, clock: time.Now}
}

// Execute runs every call for tenant t. Failures are reported inside the matching
// Result so the assistant can recover; Execute itself does not fail.
func (d *Dispatcher) Execute(ctx context.Context, t tenants.Tenant, callID string, calls []Call) []Result {
	known := d.toolsFor(ctx, t.ID)
	out := make([]Result, 0, len(calls))
	for _, c := range calls {
		payload, err := d.execute(ctx, t, callID, known, c)
		outcome := metrics.Outcome(err)
		if err != nil {
			logger.From(ctx).Warn("tool call failed",
				"tenant_id", t.ID, "call_id", callID, "tool", c.Name, "err", err)
			payload = failure(err)
		}
		metrics.ToolCalls.WithLabelValues(toolLabel(c.Name, known), outcome).Inc()
		out = append(out, Result{ToolCallID: c.ID, Result: encode(payload)})
	}
	return out
}

func (d *Dispatcher) execute(ctx context.Context, t tenants.Tenant, callID string, known []assistant.Tool, c Call) (any, error) {
	name, ok := provisioning.InternalToolName(c.Name, known)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, c.Name)
	}
	tool, _ := toolNamed(known, name)
	if !tool.Enabled {
		return nil, fmt.Errorf("%w: %q is disabled", ErrUnknownTool, name)
	}

	args, err := ParseArguments(c.Arguments)
	if err != nil {
		return nil, err
	}
	if err := validateArguments(tool.Parameters, args); err != nil {
		return nil, err
	}

	switch name {
	case assistant.ToolCurrentDatetime:
		return CurrentTime(t, d.clock()), nil
	case assistant.ToolBusinessInfo:
		return BusinessInfoFor(t), nil
	case assistant.ToolCheckAvailability:
		return d.booker.CheckAvailability(ctx, t, str(args, "date"), str(args, "time"))
	case assistant.ToolCreateAppointment:
		return d.booker.Book(ctx, appointmentRequest(t.ID, callID, args))
	}
	return nil, fmt.Errorf("%w: %q has no handler", ErrUnknownTool, name)
}

// toolsFor returns the tenant's stored tools, or the catalog when none are stored yet.
func (d *Dispatcher) toolsFor(ctx context.Context, tenantID string) []assistant.Tool {
	a, err := d.assistants.Get(ctx, tenantID)
	if err == nil && len(a.Tools) > 0 {
		return a.Tools
	}
	if err != nil && !errors.Is(err, assistant.ErrNotFound) {
		logger.From(ctx).Warn("load assistant for tool call failed", "tenant_id", tenantID, "err", err)
	}
	return assistant.Catalog()
}

func toolNamed(tools []assistant.Tool, name string) (assistant.Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return assistant.Tool{}, false
}

func toolLabel(external string, known []assistant.Tool) string {
	if name, ok := provisioning.InternalToolName(external, known); ok {
		return name
	}
	return "unknown"
}

// ParseArguments accepts arguments as a JSON object or as a JSON string holding one.
func ParseArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("toolcalls: arguments: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return map[string]any{}, nil
		}
		raw = json.RawMessage(s)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("toolcalls: arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// validateArguments checks args against the tool's stored parameter schema.
func validateArguments(schema assistant.Schema, args map[string]any) error {
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = map[string]assistant.Property{}
	}
	if schema.Required == nil {
		schema.Required = []string{}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(b), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("toolcalls: schema: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &assistant.ValidationError{Errors: msgs}
}

// appointmentRequest maps create_appointment arguments onto a booking request.
// Parameters outside the canonical set are tenant-defined fields.
func appointmentRequest(tenantID, callID string, args map[string]any) booking.Request {
	req := booking.Request{TenantID: tenantID, Source: booking.SourceAssistant, CallID: callID}
	for param, v := range args {
		canonical, ok := assistant.CanonicalFieldFor(param)
		if !ok {
			if req.Custom == nil {
				req.Custom = map[string]any{}
			}
			req.Custom[param] = v
			continue
		}
		s := fmt.Sprint(v)
		switch canonical {
		case "name":
			req.Name = s
		case "email":
			req.Email = s
		case "phone":
			req.Phone = s
		case "service":
			req.Service = s
		case "date":
			req.Date = s
		case "time":
			req.Time = s
		case "notes":
			req.Notes = s
		}
	}
	return req
}

func str(args map[string]any, key string) string {
	if v, ok := args[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

type failurePayload struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func failure(err error) failurePayload {
	p := failurePayload{Error: err.Error()}
	var ve *assistant.ValidationError
	var be *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		p.Error, p.Details = "invalid arguments", ve.Errors
	case errors.As(err, &be):
		p.Error, p.Details = "invalid appointment details", be.Errors
	}
	return p
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error":"encode result"}`
	}
	return string(b)
}
