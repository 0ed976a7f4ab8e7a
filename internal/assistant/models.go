package assistant

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("assistant: not found")
	ErrUnknownTool     = errors.New("assistant: unknown tool")
	ErrInvalidArgument = errors.New("assistant: invalid argument")
)

// Assistant is a tenant's voice-assistant configuration (one per tenant).
//
// ExternalID is empty until a provisioning round-trip succeeds. Its absence means
// "not yet provisioned", never an error state.
type Assistant struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Name         string `json:"name"`
	Prompt       string `json:"prompt"`
	CustomPrompt bool   `json:"custom_prompt"`
	FirstMessage string `json:"first_message"`
	Language     string `json:"language"`

	Voice       Voice       `json:"voice"`
	Model       Model       `json:"model"`
	Transcriber Transcriber `json:"transcriber"`

	ExternalID string `json:"external_id,omitempty"`

	// Tools are ordered; names are unique within an assistant.
	Tools []Tool `json:"tools"`

	// RequiredFields is keyed by tool name.
	RequiredFields map[string][]FieldSelection `json:"required_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Assistant) Provisioned() bool { return a.ExternalID != "" }

// ExternalToolIDs returns the external ids of every tool that has one, in tool order.
func (a Assistant) ExternalToolIDs() []string {
	out := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		if t.ExternalID != "" {
			out = append(out, t.ExternalID)
		}
	}
	return out
}

func (a Assistant) Tool(name string) (Tool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// SetTool replaces the tool with the same name, or appends it.
func (a *Assistant) SetTool(t Tool) {
	for i := range a.Tools {
		if a.Tools[i].Name == t.Name {
			a.Tools[i] = t
			return
		}
	}
	a.Tools = append(a.Tools, t)
}

// ClearExternalIDs drops every external reference, returning the assistant to unprovisioned.
func (a *Assistant) ClearExternalIDs() {
	a.ExternalID = ""
	for i := range a.Tools {
		a.Tools[i].ExternalID = ""
	}
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voice_id"`
}

type Model struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

// Strategy is how the voice platform executes a tool.
type Strategy string

const (
	// StrategyDirect tools are plain HTTP requests the platform makes itself.
	StrategyDirect Strategy = "direct"
	// StrategyCallback tools are delegated to this system's webhook.
	StrategyCallback Strategy = "callback"
)

// Tool is a schema-typed capability exposed to the assistant.
type Tool struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Parameters  Schema   `json:"parameters" yaml:"parameters"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`

	// Method and Path apply to direct tools. Path is relative to the public base URL
	// and may contain {tenant_id}.
	Method string `json:"method,omitempty" yaml:"method"`
	Path   string `json:"path,omitempty" yaml:"path"`

	// WebhookURL overrides the callback URL for this tool.
	WebhookURL string `json:"webhook_url,omitempty" yaml:"webhook_url"`

	ExternalID string `json:"external_id,omitempty" yaml:"-"`
}

// Schema is the JSON-schema subset used for tool parameters.
type Schema struct {
	Type       string              `json:"type" yaml:"type"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
	Required   []string            `json:"required" yaml:"required"`
}

type Property struct {
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Format      string   `json:"format,omitempty" yaml:"format"`
	Enum        []string `json:"enum,omitempty" yaml:"enum"`
}

func (s Schema) clone() Schema {
	out := Schema{Type: s.Type, Properties: make(map[string]Property, len(s.Properties))}
	for k, v := range s.Properties {
		out.Properties[k] = v
	}
	out.Required = append([]string{}, s.Required...)
	return out
}

// MarshalJSON always emits properties and required as an object and an array.
// JSON schema rejects null for either.
func (s Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	out := plain(s)
	if out.Properties == nil {
		out.Properties = map[string]Property{}
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	return json.Marshal(out)
}

// FieldSelection is one entry of a required-fields customization.
// Canonical selections name a built-in field ("email"); custom ones define their own
// parameter name, type and label. On the wire a canonical selection may be a bare string.
type FieldSelection struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Label  string `json:"label,omitempty"`
	Custom bool   `json:"custom,omitempty"`
}

func (f *FieldSelection) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*f = FieldSelection{Name: strings.TrimSpace(name)}
		return nil
	}
	type plain FieldSelection
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	if _, canonical := canonicalFields[p.Name]; !canonical && (p.Type != "" || p.Label != "") {
		p.Custom = true
	}
	*f = FieldSelection(p)
	return nil
}

// Fields is a convenience constructor for canonical selections.
func Fields(names ...string) []FieldSelection {
	out := make([]FieldSelection, 0, len(names))
	for _, n := range names {
		out = append(out, FieldSelection{Name: n})
	}
	return out
}

// ValidationResult lists every violation found, not just the first one.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

// ValidationError carries field-level messages.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "assistant: validation failed: " + strings.Join(e.Errors, "; ")
}

func result(errs []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
