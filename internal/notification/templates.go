package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/tenants"
)

type message struct {
	FromName string
	Subject  string
	Text     string
	HTML     string
}

type copyText struct {
	Subject  string
	Greeting string
	Intro    string
	Date     string
	Time     string
	Service  string
	Address  string
	Phone    string
	Closing  string
}

var (
	copyES = copyText{
		Subject:  "Confirmación de tu cita en %s",
		Greeting: "Hola",
		Intro:    "Tu cita ha quedado registrada.",
		Date:     "Fecha",
		Time:     "Hora",
		Service:  "Servicio",
		Address:  "Dirección",
		Phone:    "Si necesitas cambiarla, llámanos al",
		Closing:  "Un saludo",
	}
	copyEN = copyText{
		Subject:  "Your appointment at %s is confirmed",
		Greeting: "Hello",
		Intro:    "Your appointment has been booked.",
		Date:     "Date",
		Time:     "Time",
		Service:  "Service",
		Address:  "Address",
		Phone:    "If you need to change it, call us at",
		Closing:  "Best regards",
	}
)

type confirmationData struct {
	Copy        copyText
	Tenant      tenants.Tenant
	Appointment booking.Appointment
}

var textConfirmation = template.Must(template.New("text").Parse(
	`{{.Copy.Greeting}} {{.Appointment.ClientName}},

{{.Copy.Intro}}

{{.Copy.Date}}: {{.Appointment.Date}}
{{.Copy.Time}}: {{.Appointment.Time}}
{{- if .Appointment.Service}}
{{.Copy.Service}}: {{.Appointment.Service}}
{{- end}}
{{- if .Tenant.Address}}
{{.Copy.Address}}: {{.Tenant.Address}}
{{- end}}
{{if .Tenant.Phone}}
{{.Copy.Phone}} {{.Tenant.Phone}}.
{{end}}
{{.Copy.Closing}},
{{.Tenant.Name}}
`))

var htmlConfirmation = htmltemplate.Must(htmltemplate.New("html").Parse(`<html><body>
<p>{{.Copy.Greeting}} {{.Appointment.ClientName}},</p>
<p>{{.Copy.Intro}}</p>
<ul>
<li><strong>{{.Copy.Date}}:</strong> {{.Appointment.Date}}</li>
<li><strong>{{.Copy.Time}}:</strong> {{.Appointment.Time}}</li>
{{- if .Appointment.Service}}
<li><strong>{{.Copy.Service}}:</strong> {{.Appointment.Service}}</li>
{{- end}}
{{- if .Tenant.Address}}
<li><strong>{{.Copy.Address}}:</strong> {{.Tenant.Address}}</li>
{{- end}}
</ul>
{{- if .Tenant.Phone}}
<p>{{.Copy.Phone}} {{.Tenant.Phone}}.</p>
{{- end}}
<p>{{.Copy.Closing}},<br>{{.Tenant.Name}}</p>
</body></html>
`))

func renderConfirmation(t tenants.Tenant, a booking.Appointment) (message, error) {
	c := copyEN
	if assistant.IsSpanish(assistant.LanguageOf(t)) {
		c = copyES
	}
	data := confirmationData{Copy: c, Tenant: t, Appointment: a}

	var txt, html bytes.Buffer
	if err := textConfirmation.Execute(&txt, data); err != nil {
		return message{}, err
	}
	if err := htmlConfirmation.Execute(&html, data); err != nil {
		return message{}, err
	}
	return message{
		FromName: t.Name,
		Subject:  fmt.Sprintf(c.Subject, t.Name),
		Text:     txt.String(),
		HTML:     html.String(),
	}, nil
}
