package vapi

import "time"

// AssistantSpec is the assistant configuration sent on create and update.
// Tool ids are passed separately so callers cannot forget them.
type AssistantSpec struct {
	Name           string            `json:"name,omitempty"`
	FirstMessage   string            `json:"firstMessage,omitempty"`
	Model          ModelSpec         `json:"model"`
	Voice          *Voice            `json:"voice,omitempty"`
	Transcriber    *Transcriber      `json:"transcriber,omitempty"`
	Server         *Server           `json:"server,omitempty"`
	ServerMessages []string          `json:"serverMessages,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ModelSpec struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Voice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

type Server struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// assistantBody is the wire shape: the model block always carries toolIds.
type assistantBody struct {
	Name           string            `json:"name,omitempty"`
	FirstMessage   string            `json:"firstMessage,omitempty"`
	Model          modelBody         `json:"model"`
	Voice          *Voice            `json:"voice,omitempty"`
	Transcriber    *Transcriber      `json:"transcriber,omitempty"`
	Server         *Server           `json:"server,omitempty"`
	ServerMessages []string          `json:"serverMessages,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type modelBody struct {
	ModelSpec
	ToolIDs []string `json:"toolIds"`
}

func (s AssistantSpec) body(toolIDs []string) assistantBody {
	return assistantBody{
		Name:           s.Name,
		FirstMessage:   s.FirstMessage,
		Model:          modelBody{ModelSpec: s.Model, ToolIDs: toolIDs},
		Voice:          s.Voice,
		Transcriber:    s.Transcriber,
		Server:         s.Server,
		ServerMessages: s.ServerMessages,
		Metadata:       s.Metadata,
	}
}

// Assistant is the platform's view of an assistant.
type Assistant struct {
	ID       string            `json:"id"`
	OrgID    string            `json:"orgId,omitempty"`
	Name     string            `json:"name"`
	Model    AssistantModel    `json:"model"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AssistantModel struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	ToolIDs  []string `json:"toolIds"`
}

// Tool types on the platform.
const (
	ToolTypeFunction   = "function"
	ToolTypeAPIRequest = "apiRequest"
)

// ToolSpec creates a tool resource. Function tools call back into Server;
// apiRequest tools are plain HTTP requests made by the platform.
type ToolSpec struct {
	Type     string        `json:"type"`
	Async    *bool         `json:"async,omitempty"`
	Function *Function     `json:"function,omitempty"`
	Server   *Server       `json:"server,omitempty"`
	Messages []ToolMessage `json:"messages,omitempty"`

	// apiRequest fields.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Function struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// FunctionUpdate is the only tool update this client sends. Strategy metadata
// (type, async, messages, server) is never resent.
type FunctionUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type ToolMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type Tool struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Function    *Function `json:"function,omitempty"`
	Server      *Server   `json:"server,omitempty"`
	Async       *bool     `json:"async,omitempty"`
	Method      string    `json:"method,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Description string    `json:"description,omitempty"`
}

// ToolName returns the function name or the apiRequest name.
func (t Tool) ToolName() string {
	if t.Function != nil && t.Function.Name != "" {
		return t.Function.Name
	}
	return t.Name
}

type CallRequest struct {
	AssistantID   string            `json:"assistantId"`
	PhoneNumberID string            `json:"phoneNumberId,omitempty"`
	Customer      Customer          `json:"customer"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type Call struct {
	ID          string     `json:"id"`
	AssistantID string     `json:"assistantId"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	EndedReason string     `json:"endedReason,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Cost        float64    `json:"cost,omitempty"`
	Customer    *Customer  `json:"customer,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ListCallsParams struct {
	AssistantID string
	Limit       int
}
