package assistant

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"receptionist-platform/internal/tenants"
)

// DefaultLanguage applies when a tenant has not chosen a language.
const DefaultLanguage = "es-ES"

// Section headers of the compiled prompt. The required-fields section lists one
// "- <label> (<parameter>)" line per selection.
const (
	requiredHeaderES = "## Datos obligatorios para reservar"
	requiredHeaderEN = "## Required booking details"
)

const maxAssistantName = 40

// IsSpanish reports whether a language tag selects the Spanish variant.
func IsSpanish(lang string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "es")
}

// LanguageOf returns the tenant's language or the default.
func LanguageOf(t tenants.Tenant) string {
	if l := strings.TrimSpace(t.Language); l != "" {
		return l
	}
	return DefaultLanguage
}

// Config is the provider-agnostic assistant configuration.
type Config struct {
	Name           string                      `json:"name"`
	Prompt         string                      `json:"prompt"`
	FirstMessage   string                      `json:"first_message"`
	Language       string                      `json:"language"`
	Voice          Voice                       `json:"voice"`
	Model          Model                       `json:"model"`
	Transcriber    Transcriber                 `json:"transcriber"`
	Tools          []Tool                      `json:"tools"`
	RequiredFields map[string][]FieldSelection `json:"required_fields"`
}

// Assistant materializes the config as an unprovisioned assistant for tenantID.
func (c Config) Assistant(tenantID string) Assistant {
	return Assistant{
		TenantID:       tenantID,
		Name:           c.Name,
		Prompt:         c.Prompt,
		FirstMessage:   c.FirstMessage,
		Language:       c.Language,
		Voice:          c.Voice,
		Model:          c.Model,
		Transcriber:    c.Transcriber,
		Tools:          c.Tools,
		RequiredFields: c.RequiredFields,
	}
}

// DefaultConfig returns the defaults for an industry. Deterministic: the same
// industry always yields the same config.
func DefaultConfig(industry Industry) Config {
	return DefaultConfigFor(tenants.Tenant{Industry: string(industry)})
}

// DefaultConfigFor returns the defaults for a concrete tenant.
func DefaultConfigFor(t tenants.Tenant) Config {
	lang := LanguageOf(t)
	es := IsSpanish(lang)
	p := profileFor(ParseIndustry(t.Industry))

	selections := Fields(p.RequiredFields...)
	tools := Catalog()
	for i := range tools {
		if tools[i].Name == ToolCreateAppointment {
			tools[i].Parameters = BuildCreateAppointmentSchema(selections)
		}
	}

	return Config{
		Name:           assistantName(t, es),
		Prompt:         CompilePrompt(t, selections),
		FirstMessage:   firstMessage(t, es),
		Language:       lang,
		Voice:          defaultVoice(es),
		Model:          Model{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.3},
		Transcriber:    Transcriber{Provider: "deepgram", Model: "nova-2", Language: strings.SplitN(lang, "-", 2)[0]},
		Tools:          tools,
		RequiredFields: map[string][]FieldSelection{ToolCreateAppointment: selections},
	}
}

// CompilePrompt renders the behavior prompt for a tenant. It is pure so it can be
// previewed before provisioning.
func CompilePrompt(t tenants.Tenant, selections []FieldSelection) string {
	es := IsSpanish(LanguageOf(t))
	p := profileFor(ParseIndustry(t.Industry))

	var b strings.Builder

	var roleBuf bytes.Buffer
	if err := p.Role.pick(es).Execute(&roleBuf, struct{ Name string }{businessName(t, es)}); err != nil {
		// Role templates are static and only reference .Name.
		panic(fmt.Sprintf("assistant: role template: %v", err))
	}
	b.WriteString(roleBuf.String())
	b.WriteString("\n\n")

	writeBusinessInfo(&b, t, p, es)
	writeRequiredFields(&b, dedupe(selections), es)
	writeSchedulingFlow(&b, es)
	writeRules(&b, es)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeBusinessInfo(b *strings.Builder, t tenants.Tenant, p profile, es bool) {
	l := func(esText, enText string) string {
		if es {
			return esText
		}
		return enText
	}
	b.WriteString(l("## Información del negocio\n", "## Business information\n"))
	fmt.Fprintf(b, "- %s: %s\n", l("Nombre", "Name"), businessName(t, es))
	if t.Address != "" {
		fmt.Fprintf(b, "- %s: %s\n", l("Dirección", "Address"), t.Address)
	}
	if t.Phone != "" {
		fmt.Fprintf(b, "- %s: %s\n", l("Teléfono", "Phone"), t.Phone)
	}
	if t.Email != "" {
		fmt.Fprintf(b, "- Email: %s\n", t.Email)
	}
	if t.Website != "" {
		fmt.Fprintf(b, "- Web: %s\n", t.Website)
	}
	if t.Hours != "" {
		fmt.Fprintf(b, "- %s: %s\n", l("Horario", "Opening hours"), t.Hours)
	} else {
		fmt.Fprintf(b, "- %s: %s\n", l("Horario", "Opening hours"), l("consulta get_business_info", "use get_business_info"))
	}

	services := t.Services
	if len(services) == 0 {
		services = p.Services.pick(es)
	}
	fmt.Fprintf(b, "- %s:\n", l("Servicios", "Services"))
	for _, s := range services {
		fmt.Fprintf(b, "  - %s\n", s)
	}
	b.WriteString("\n")
}

func writeRequiredFields(b *strings.Builder, selections []FieldSelection, es bool) {
	if es {
		b.WriteString(requiredHeaderES + "\n")
	} else {
		b.WriteString(requiredHeaderEN + "\n")
	}
	for _, f := range selections {
		fmt.Fprintf(b, "- %s (%s)\n", labelFor(f, es), ParamFor(f))
	}
	b.WriteString("\n")
}

func writeSchedulingFlow(b *strings.Builder, es bool) {
	if es {
		b.WriteString("## Flujo de reserva\n")
		fmt.Fprintf(b, "1. Llama a %s para conocer la fecha y hora actuales antes de hablar de cualquier fecha.\n", ToolCurrentDatetime)
		b.WriteString("2. Pide los datos obligatorios de uno en uno y en el orden indicado arriba.\n")
		fmt.Fprintf(b, "3. Llama a %s con la fecha y hora elegidas.\n", ToolCheckAvailability)
		fmt.Fprintf(b, "4. Si hay disponibilidad, llama a %s con todos los datos recogidos.\n", ToolCreateAppointment)
		b.WriteString("5. Confirma la cita al cliente repitiendo servicio, fecha y hora.\n\n")
		return
	}
	b.WriteString("## Booking flow\n")
	fmt.Fprintf(b, "1. Call %s to learn the current date and time before discussing any date.\n", ToolCurrentDatetime)
	b.WriteString("2. Ask for the required details one at a time, in the order listed above.\n")
	fmt.Fprintf(b, "3. Call %s with the chosen date and time.\n", ToolCheckAvailability)
	fmt.Fprintf(b, "4. If the slot is free, call %s with every collected detail.\n", ToolCreateAppointment)
	b.WriteString("5. Confirm the appointment back to the caller, repeating service, date and time.\n\n")
}

func writeRules(b *strings.Builder, es bool) {
	if es {
		b.WriteString("## Normas\n")
		b.WriteString("- Responde siempre en español, con frases cortas y naturales.\n")
		b.WriteString("- Usa las fechas en formato AAAA-MM-DD al llamar a las herramientas.\n")
		b.WriteString("- Si no sabes algo, ofrece que el negocio devuelva la llamada.\n")
		return
	}
	b.WriteString("## Rules\n")
	b.WriteString("- Always answer in English, with short natural sentences.\n")
	b.WriteString("- Use YYYY-MM-DD dates when calling tools.\n")
	b.WriteString("- If you do not know something, offer a call back from the business.\n")
}

func businessName(t tenants.Tenant, es bool) string {
	if n := strings.TrimSpace(t.Name); n != "" {
		return n
	}
	if es {
		return "nuestro negocio"
	}
	return "our business"
}

func assistantName(t tenants.Tenant, es bool) string {
	var name string
	if es {
		name = "Recepcionista " + businessName(t, es)
	} else {
		name = businessName(t, es) + " Receptionist"
	}
	return truncateRunes(name, maxAssistantName)
}

func firstMessage(t tenants.Tenant, es bool) string {
	if es {
		return fmt.Sprintf("Hola, has llamado a %s. Soy la asistente virtual, ¿en qué puedo ayudarte?", businessName(t, es))
	}
	return fmt.Sprintf("Hi, you've reached %s. I'm the virtual assistant, how can I help you?", businessName(t, es))
}

func defaultVoice(es bool) Voice {
	if es {
		return Voice{Provider: "azure", VoiceID: "es-ES-ElviraNeural"}
	}
	return Voice{Provider: "azure", VoiceID: "en-US-JennyNeural"}
}

func dedupe(in []FieldSelection) []FieldSelection {
	seen := make(map[string]struct{}, len(in))
	out := make([]FieldSelection, 0, len(in))
	for _, f := range in {
		if f.Name == "" {
			continue
		}
		k := ParamFor(f)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
