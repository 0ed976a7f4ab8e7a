package notification

import (
	"context"
	"errors"
	"mime"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/config"
	"receptionist-platform/internal/tenants"
)

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestService(cfg config.SMTPConfig, out *captured, sendErr error) *EmailService {
	s := NewEmailService(cfg)
	s.clock = func() time.Time { return time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC) }
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*out = captured{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return sendErr
	}
	return s
}

var smtpCfg = config.SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Password: "p", From: "citas@example.com"}

func TestSendConfirmationSpanish(t *testing.T) {
	var out captured
	s := newTestService(smtpCfg, &out, nil)

	tn := tenants.Tenant{ID: "t1", Name: "Clínica Sol", Phone: "+34 600 111 222", Address: "Calle Mayor 1"}
	a := booking.Appointment{ClientName: "Ana <b>", ClientEmail: "ana@example.com", Service: "Limpieza", Date: "2025-11-03", Time: "10:00"}
	if err := s.SendConfirmation(context.Background(), tn, a); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}

	if out.addr != "smtp.example.com:587" || out.from != "citas@example.com" || len(out.to) != 1 || out.to[0] != "ana@example.com" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	if out.auth == nil {
		t.Fatalf("expected plain auth when a user is configured")
	}

	dec := new(mime.WordDecoder)
	var subject string
	for _, line := range strings.Split(out.msg, "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			subject, _ = dec.DecodeHeader(strings.TrimPrefix(line, "Subject: "))
		}
	}
	if subject != "Confirmación de tu cita en Clínica Sol" {
		t.Fatalf("subject = %q", subject)
	}
	if !strings.Contains(out.msg, "multipart/alternative") {
		t.Fatalf("expected multipart message")
	}
	if !strings.Contains(out.msg, "Fecha: 2025-11-03") || !strings.Contains(out.msg, "Servicio: Limpieza") {
		t.Fatalf("text part missing details:\n%s", out.msg)
	}
	if !strings.Contains(out.msg, "Ana &lt;b&gt;") {
		t.Fatalf("html part must escape client input:\n%s", out.msg)
	}
}

func TestSendConfirmationEnglish(t *testing.T) {
	var out captured
	s := newTestService(smtpCfg, &out, nil)

	tn := tenants.Tenant{ID: "t1", Name: "Sun Dental", Language: "en-US"}
	a := booking.Appointment{ClientName: "Bob", ClientEmail: "bob@example.com", Date: "2025-11-03", Time: "09:30"}
	if err := s.SendConfirmation(context.Background(), tn, a); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	if !strings.Contains(out.msg, "Your appointment has been booked.") || !strings.Contains(out.msg, "Time: 09:30") {
		t.Fatalf("expected english copy:\n%s", out.msg)
	}
	if strings.Contains(out.msg, "Service:") {
		t.Fatalf("empty service must be omitted")
	}
}

func TestSendConfirmationErrors(t *testing.T) {
	var out captured
	a := booking.Appointment{ClientName: "Ana", ClientEmail: "ana@example.com", Date: "2025-11-03", Time: "10:00"}

	if err := NewEmailService(config.SMTPConfig{}).SendConfirmation(context.Background(), tenants.Tenant{}, a); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	s := newTestService(smtpCfg, &out, errors.New("421 try later"))
	if err := s.SendConfirmation(context.Background(), tenants.Tenant{Name: "X"}, a); err == nil || !strings.Contains(err.Error(), "421") {
		t.Fatalf("expected transport error, got %v", err)
	}

	a.ClientEmail = ""
	if err := s.SendConfirmation(context.Background(), tenants.Tenant{Name: "X"}, a); err == nil {
		t.Fatalf("expected error without client email")
	}
}
