package assistant

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Catalog tool names.
const (
	ToolCurrentDatetime   = "get_current_datetime"
	ToolBusinessInfo      = "get_business_info"
	ToolCheckAvailability = "check_availability"
	ToolCreateAppointment = "create_appointment"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Tools []Tool `yaml:"tools"`
}

var catalog = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(b []byte) []Tool {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		panic(fmt.Sprintf("assistant: catalog.yaml: %v", err))
	}
	for i, t := range f.Tools {
		if t.Parameters.Properties == nil {
			f.Tools[i].Parameters.Properties = map[string]Property{}
		}
		if t.Parameters.Required == nil {
			f.Tools[i].Parameters.Required = []string{}
		}
	}
	return f.Tools
}

// Catalog returns a copy of the default tool catalog.
func Catalog() []Tool {
	out := make([]Tool, len(catalog))
	for i, t := range catalog {
		t.Parameters = t.Parameters.clone()
		out[i] = t
	}
	return out
}

// CatalogTool returns the catalog definition for name.
func CatalogTool(name string) (Tool, bool) {
	for _, t := range catalog {
		if t.Name == name {
			t.Parameters = t.Parameters.clone()
			return t, true
		}
	}
	return Tool{}, false
}

// IsDirect reports whether name is executed by the platform as a plain HTTP request.
func IsDirect(name string) bool {
	t, ok := CatalogTool(name)
	return ok && t.Strategy == StrategyDirect
}

// canonicalField maps a tenant-facing field name to the tool parameter it fills.
type canonicalField struct {
	Param   string
	Type    string
	LabelES string
	LabelEN string
}

var canonicalFields = map[string]canonicalField{
	"name":    {Param: "clientName", Type: "string", LabelES: "nombre completo", LabelEN: "full name"},
	"email":   {Param: "clientEmail", Type: "string", LabelES: "correo electrónico", LabelEN: "email address"},
	"phone":   {Param: "clientPhone", Type: "string", LabelES: "teléfono de contacto", LabelEN: "contact phone number"},
	"service": {Param: "service", Type: "string", LabelES: "servicio deseado", LabelEN: "requested service"},
	"date":    {Param: "date", Type: "string", LabelES: "fecha", LabelEN: "date"},
	"time":    {Param: "time", Type: "string", LabelES: "hora", LabelEN: "time"},
	"notes":   {Param: "notes", Type: "string", LabelES: "notas adicionales", LabelEN: "additional notes"},
}

// canonicalOrder is the collection order used in prompts.
var canonicalOrder = []string{"name", "email", "phone", "service", "date", "time", "notes"}

// ParamFor returns the tool parameter name for a selection.
func ParamFor(f FieldSelection) string {
	if c, ok := canonicalFields[f.Name]; ok && !f.Custom {
		return c.Param
	}
	return f.Name
}

// CanonicalFieldFor maps a create_appointment parameter back to its canonical name.
func CanonicalFieldFor(param string) (string, bool) {
	for name, c := range canonicalFields {
		if c.Param == param {
			return name, true
		}
	}
	return "", false
}

func labelFor(f FieldSelection, spanish bool) string {
	if c, ok := canonicalFields[f.Name]; ok && !f.Custom {
		if spanish {
			return c.LabelES
		}
		return c.LabelEN
	}
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
