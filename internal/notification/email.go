package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/config"
	"receptionist-platform/internal/tenants"
)

var ErrNotConfigured = errors.New("notification: smtp not configured")

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends appointment confirmations over SMTP.
type EmailService struct {
	config config.SMTPConfig
	send   sendFunc
	clock  func() time.Time
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{config: cfg, send: smtp.SendMail, clock: time.Now}
}

func (s *EmailService) Configured() bool {
	return s != nil && s.config.Host != "" && s.config.Port > 0 && s.config.From != ""
}

// SendConfirmation emails the client a localized confirmation of a.
func (s *EmailService) SendConfirmation(ctx context.Context, t tenants.Tenant, a booking.Appointment) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if a.ClientEmail == "" {
		return errors.New("notification: appointment has no client email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := renderConfirmation(t, a)
	if err != nil {
		return err
	}
	return s.sendEmail(a.ClientEmail, msg)
}

func (s *EmailService) sendEmail(to string, m message) error {
	fromName := s.config.FromName
	if fromName == "" {
		fromName = m.FromName
	}
	from := s.config.From
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), s.config.From)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	var head strings.Builder
	fmt.Fprintf(&head, "From: %s\r\n", from)
	fmt.Fprintf(&head, "To: %s\r\n", to)
	fmt.Fprintf(&head, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&head, "Date: %s\r\n", s.clock().Format(time.RFC1123Z))
	head.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&head, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())

	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", m.Text},
		{"text/html; charset=UTF-8", m.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, []string{to}, append([]byte(head.String()), body.Bytes()...)); err != nil {
		return fmt.Errorf("notification: send: %w", err)
	}
	return nil
}
