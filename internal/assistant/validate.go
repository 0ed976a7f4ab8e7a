package assistant

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

var customFieldName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,39}$`)

// maxFieldLabelRunes bounds a label spliced into the compiled prompt.
const maxFieldLabelRunes = 80

var customFieldTypes = map[string]struct{}{
	"string":  {},
	"number":  {},
	"integer": {},
	"boolean": {},
}

// ValidateToolParameters checks untrusted tool definitions and returns every violation.
func ValidateToolParameters(tools []map[string]any) ValidationResult {
	var errs []string
	names := map[string]int{}

	for i, t := range tools {
		label := fmt.Sprintf("tools[%d]", i)

		name, ok := t["name"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			errs = append(errs, label+".name is required")
		} else {
			label = fmt.Sprintf("tools[%d] (%s)", i, name)
			if prev, dup := names[name]; dup {
				errs = append(errs, fmt.Sprintf("%s: duplicate name, already used by tools[%d]", label, prev))
			}
			names[name] = i
		}

		if d, ok := t["description"].(string); !ok || strings.TrimSpace(d) == "" {
			errs = append(errs, label+".description is required")
		}

		if v, present := t["enabled"]; present {
			if _, ok := v.(bool); !ok {
				errs = append(errs, label+".enabled must be a boolean")
			}
		}

		for _, key := range []string{"webhook_url", "webhookUrl"} {
			if v, present := t[key]; present && v != nil {
				s, ok := v.(string)
				if !ok {
					errs = append(errs, fmt.Sprintf("%s.%s must be a string", label, key))
					continue
				}
				if s != "" && !validWebhookURL(s) {
					errs = append(errs, fmt.Sprintf("%s.%s is not a valid http(s) URL", label, key))
				}
			}
		}

		errs = append(errs, validateParameters(label, t["parameters"])...)
	}
	return result(errs)
}

// ValidateTools validates typed tools with the same rules as ValidateToolParameters.
func ValidateTools(tools []Tool) ValidationResult {
	raw := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		b, err := json.Marshal(t)
		if err != nil {
			return result([]string{fmt.Sprintf("tool %q: %v", t.Name, err)})
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return result([]string{fmt.Sprintf("tool %q: %v", t.Name, err)})
		}
		raw = append(raw, m)
	}
	return ValidateToolParameters(raw)
}

func validateParameters(label string, v any) []string {
	params, ok := v.(map[string]any)
	if !ok {
		return []string{label + ".parameters must be an object"}
	}
	var errs []string
	if typ, _ := params["type"].(string); typ != "object" {
		errs = append(errs, label+`.parameters.type must be "object"`)
	}

	props := map[string]any{}
	if raw, present := params["properties"]; present && raw != nil {
		p, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, label+".parameters.properties must be an object")
		} else {
			props = p
		}
	}
	for name, raw := range props {
		p, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("%s.parameters.properties.%s must be an object", label, name))
			continue
		}
		if typ, _ := p["type"].(string); typ == "" {
			errs = append(errs, fmt.Sprintf("%s.parameters.properties.%s.type is required", label, name))
		}
	}

	if raw, present := params["required"]; present && raw != nil {
		req, ok := raw.([]any)
		if !ok {
			errs = append(errs, label+".parameters.required must be an array")
		} else {
			for _, r := range req {
				s, ok := r.(string)
				if !ok {
					errs = append(errs, label+".parameters.required entries must be strings")
					continue
				}
				if _, declared := props[s]; !declared {
					errs = append(errs, fmt.Sprintf("%s.parameters.required references undeclared property %q", label, s))
				}
			}
		}
	}

	if len(errs) == 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params)); err != nil {
			errs = append(errs, fmt.Sprintf("%s.parameters is not a valid JSON schema: %v", label, err))
		}
	}
	return errs
}

func validWebhookURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateRequiredFields checks a required-fields selection against the catalog tool.
func ValidateRequiredFields(toolName string, fields []FieldSelection) ValidationResult {
	t, ok := CatalogTool(toolName)
	if !ok {
		return result([]string{fmt.Sprintf("unknown tool %q", toolName)})
	}
	return ValidateRequiredFieldsFor(t, fields)
}

// ValidateRequiredFieldsFor checks a selection against a concrete tool definition.
// Canonical fields must map to a declared parameter. Custom fields are only accepted
// by create_appointment, whose schema is regenerated from the selection.
func ValidateRequiredFieldsFor(t Tool, fields []FieldSelection) ValidationResult {
	var errs []string
	seen := map[string]struct{}{}

	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Sprintf("fields[%d].name is required", i))
			continue
		}
		param := ParamFor(f)
		if _, dup := seen[param]; dup {
			errs = append(errs, fmt.Sprintf("field %q is listed more than once", f.Name))
			continue
		}
		seen[param] = struct{}{}

		if msg := checkFieldLabel(f.Label); msg != "" {
			errs = append(errs, fmt.Sprintf("field %q label %s", f.Name, msg))
		}

		if !f.Custom {
			if _, declared := t.Parameters.Properties[param]; !declared {
				errs = append(errs, fmt.Sprintf("field %q is not a parameter of %s (known: %s)", f.Name, t.Name, strings.Join(knownFields(t), ", ")))
			}
			continue
		}

		if t.Name != ToolCreateAppointment {
			errs = append(errs, fmt.Sprintf("custom field %q is not supported by %s", f.Name, t.Name))
			continue
		}
		if !customFieldName.MatchString(f.Name) {
			errs = append(errs, fmt.Sprintf("custom field %q must start with a letter and contain only letters, digits or _", f.Name))
		}
		if _, ok := customFieldTypes[f.Type]; !ok {
			errs = append(errs, fmt.Sprintf("custom field %q has unsupported type %q", f.Name, f.Type))
		}
		if _, clash := CanonicalFieldFor(f.Name); clash {
			errs = append(errs, fmt.Sprintf("custom field %q collides with a built-in parameter", f.Name))
		}
	}
	return result(errs)
}

// checkFieldLabel rejects labels that could break out of their prompt line.
func checkFieldLabel(label string) string {
	if !utf8.ValidString(label) {
		return "is not valid UTF-8"
	}
	if n := utf8.RuneCountInString(label); n > maxFieldLabelRunes {
		return fmt.Sprintf("is %d characters long (max %d)", n, maxFieldLabelRunes)
	}
	for _, r := range label {
		if unicode.IsControl(r) || r == '\u2028' || r == '\u2029' {
			return "must not contain line breaks or control characters"
		}
	}
	return ""
}

func knownFields(t Tool) []string {
	var out []string
	for _, name := range canonicalOrder {
		if _, ok := t.Parameters.Properties[canonicalFields[name].Param]; ok {
			out = append(out, name)
		}
	}
	return out
}

// BuildCreateAppointmentSchema regenerates the create_appointment parameters for a
// selection. Canonical fields keep their catalog definition; custom fields are added
// with their declared type; required lists the selection in order.
func BuildCreateAppointmentSchema(fields []FieldSelection) Schema {
	base, _ := CatalogTool(ToolCreateAppointment)
	s := base.Parameters.clone()
	s.Required = []string{}

	for _, f := range dedupe(fields) {
		param := ParamFor(f)
		if f.Custom {
			desc := f.Label
			if desc == "" {
				desc = f.Name
			}
			s.Properties[param] = Property{Type: f.Type, Description: desc}
		}
		s.Required = append(s.Required, param)
	}
	return s
}
