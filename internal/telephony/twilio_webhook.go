package telephony

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"receptionist-platform/internal/calls"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// TwilioStatusForm captures the status-callback fields we care about.
// Twilio sends application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	CallDuration string
	Timestamp    string
	RecordingURL string
	Price        string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: r.PostFormValue("CallDuration"),
		Timestamp:    r.PostFormValue("Timestamp"),
		RecordingURL: r.PostFormValue("RecordingUrl"),
		Price:        r.PostFormValue("Price"),
	}, nil
}

// twilioTerminal are the statuses after which a call is over.
var twilioTerminal = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

// Payload is the view used by the tenant resolver.
func (f TwilioStatusForm) Payload() map[string]any {
	return map[string]any{"To": f.To, "From": f.From, "Direction": f.Direction}
}

// ToUpdate maps the form onto a call update for tenantID.
func (f TwilioStatusForm) ToUpdate(tenantID string) calls.Update {
	u := calls.Update{
		TenantID:       tenantID,
		Provider:       calls.ProviderTwilio,
		ProviderCallID: f.CallSid,
		From:           nonEmpty(f.From),
		To:             nonEmpty(f.To),
		RecordingURL:   nonEmpty(f.RecordingURL),
	}
	if d, ok := calls.ParseDirection(f.Direction); ok {
		u.Direction = &d
	}
	if f.CallStatus != "" {
		st := calls.MapStatus(calls.ProviderTwilio, f.CallStatus)
		u.Status = &st
		u.RawStatus = calls.Ptr(f.CallStatus)
	}
	if n, err := strconv.Atoi(f.CallDuration); err == nil && n >= 0 {
		u.DurationSeconds = &n
	}
	if p, err := strconv.ParseFloat(f.Price, 64); err == nil {
		// Twilio reports price as a negative charge.
		if p < 0 {
			p = -p
		}
		u.Cost = &p
	}
	if ts, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
		if twilioTerminal[strings.ToLower(f.CallStatus)] {
			u.EndedAt = &ts
		} else {
			u.StartedAt = &ts
		}
	}
	return u
}

// TwilioValidator checks X-Twilio-Signature. A zero token disables the check.
type TwilioValidator struct {
	v       *client.RequestValidator
	enabled bool
}

func NewTwilioValidator(authToken string) TwilioValidator {
	if authToken == "" {
		return TwilioValidator{}
	}
	v := client.NewRequestValidator(authToken)
	return TwilioValidator{v: &v, enabled: true}
}

func (t TwilioValidator) Enabled() bool { return t.enabled }

// Valid verifies signature over the public URL and posted form values.
func (t TwilioValidator) Valid(publicURL string, r *http.Request, signature string) bool {
	if !t.enabled {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return t.v.Validate(publicURL, params, signature)
}

// emptyTwiML is the acknowledgement body for Twilio callbacks.
func emptyTwiML() string {
	s, err := twiml.Voice(nil)
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	}
	return s
}

func nonEmpty(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
