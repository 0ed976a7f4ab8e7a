package provisioning

import (
	"net/url"
	"strings"
	"unicode"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/vapi"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxToolName is the platform's limit on function names.
const maxToolName = 64

// serverMessages are the call events the platform posts back to the webhook.
var serverMessages = []string{"status-update", "end-of-call-report", "tool-calls"}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// TenantSlug reduces a tenant name to [a-z0-9_] for namespacing external resources.
// Accents are folded ("Clínica" -> "clinica"). Falls back to the tenant id.
func TenantSlug(t tenants.Tenant) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(t.Name))
	if err != nil {
		folded = strings.ToLower(t.Name)
	}

	var b strings.Builder
	underscore := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(t.ID), "-", "")
	}
	return slug
}

// ExternalToolName namespaces a catalog tool name by tenant: "<slug>_<tool>".
// The slug is shortened so the result fits maxToolName; the tool name is never cut.
func ExternalToolName(t tenants.Tenant, tool string) string {
	slug := TenantSlug(t)
	room := maxToolName - len(tool) - 1
	if room <= 0 {
		return tool[:min(len(tool), maxToolName)]
	}
	if len(slug) > room {
		slug = strings.TrimRight(slug[:room], "_")
	}
	if slug == "" {
		return tool
	}
	return slug + "_" + tool
}

// InternalToolName maps an external tool name back to a catalog name. Matching is by
// suffix so a later tenant rename does not orphan existing tools.
func InternalToolName(external string, known []assistant.Tool) (string, bool) {
	for _, t := range known {
		if external == t.Name || strings.HasSuffix(external, "_"+t.Name) {
			return t.Name, true
		}
	}
	return "", false
}

func isDirect(t assistant.Tool) bool {
	return assistant.IsDirect(t.Name)
}

func (s *Synchronizer) webhookURL() string {
	return s.opts.PublicBaseURL + "/webhooks/vapi"
}

func (s *Synchronizer) directURL(tenantID, path string) string {
	return s.opts.PublicBaseURL + strings.ReplaceAll(path, "{tenant_id}", url.PathEscape(tenantID))
}

func (s *Synchronizer) toolSpec(t tenants.Tenant, tool assistant.Tool, lang string) vapi.ToolSpec {
	name := ExternalToolName(t, tool.Name)
	if isDirect(tool) {
		method := tool.Method
		if method == "" {
			method = "GET"
		}
		return vapi.ToolSpec{
			Type:        vapi.ToolTypeAPIRequest,
			Name:        name,
			Description: tool.Description,
			Method:      method,
			URL:         s.directURL(t.ID, tool.Path),
		}
	}

	target := tool.WebhookURL
	if target == "" {
		target = s.webhookURL()
	}
	async := false
	return vapi.ToolSpec{
		Type:  vapi.ToolTypeFunction,
		Async: &async,
		Function: &vapi.Function{
			Name:        name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
		Server:   &vapi.Server{URL: target, Secret: s.opts.WebhookSecret},
		Messages: []vapi.ToolMessage{{Type: "request-start", Content: waitMessage(lang)}},
	}
}

func waitMessage(lang string) string {
	if assistant.IsSpanish(lang) {
		return "Un momento, por favor, lo compruebo."
	}
	return "One moment please, let me check."
}

func (s *Synchronizer) assistantSpec(t tenants.Tenant, a assistant.Assistant) vapi.AssistantSpec {
	return vapi.AssistantSpec{
		Name:         a.Name,
		FirstMessage: a.FirstMessage,
		Model: vapi.ModelSpec{
			Provider:    a.Model.Provider,
			Model:       a.Model.Model,
			Temperature: a.Model.Temperature,
			Messages:    []vapi.Message{{Role: "system", Content: a.Prompt}},
		},
		Voice:          &vapi.Voice{Provider: a.Voice.Provider, VoiceID: a.Voice.VoiceID},
		Transcriber:    &vapi.Transcriber{Provider: a.Transcriber.Provider, Model: a.Transcriber.Model, Language: a.Transcriber.Language},
		Server:         &vapi.Server{URL: s.webhookURL(), Secret: s.opts.WebhookSecret},
		ServerMessages: serverMessages,
		Metadata:       map[string]string{"tenantId": t.ID},
	}
}

// activeToolIDs is the tool-id list the live assistant must reference: enabled tools
// that exist on the platform, in tool order.
func activeToolIDs(a assistant.Assistant) []string {
	out := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		if t.Enabled && t.ExternalID != "" {
			out = append(out, t.ExternalID)
		}
	}
	return out
}
