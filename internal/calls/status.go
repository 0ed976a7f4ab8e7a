package calls

import "strings"

// Status is one of exactly five normalized call outcomes.
type Status string

const (
	StatusAnswered  Status = "answered"
	StatusMissed    Status = "missed"
	StatusBusy      Status = "busy"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Statuses lists every normalized value.
var Statuses = []Status{StatusAnswered, StatusMissed, StatusBusy, StatusFailed, StatusCompleted}

// Provider names the source of a webhook.
type Provider string

const (
	ProviderTwilio     Provider = "twilio"
	ProviderVapi       Provider = "vapi"
	ProviderAutomation Provider = "automation"
)

// statusTables map each provider's vocabulary. Keys are normalized by normalizeRaw.
var statusTables = map[Provider]map[string]Status{
	ProviderTwilio: {
		"queued":      StatusAnswered,
		"initiated":   StatusAnswered,
		"ringing":     StatusAnswered,
		"in-progress": StatusAnswered,
		"answered":    StatusAnswered,
		"completed":   StatusCompleted,
		"busy":        StatusBusy,
		"failed":      StatusFailed,
		"no-answer":   StatusMissed,
		"canceled":    StatusMissed,
	},
	ProviderVapi: {
		"scheduled":   StatusAnswered,
		"queued":      StatusAnswered,
		"ringing":     StatusAnswered,
		"in-progress": StatusAnswered,
		"forwarding":  StatusAnswered,
		"ended":       StatusCompleted,
	},
	ProviderAutomation: {
		"answered":  StatusAnswered,
		"missed":    StatusMissed,
		"no-answer": StatusMissed,
		"voicemail": StatusMissed,
		"busy":      StatusBusy,
		"failed":    StatusFailed,
		"error":     StatusFailed,
		"completed": StatusCompleted,
		"success":   StatusCompleted,
	},
}

// endedReasons refines the platform's "ended" status by why the call ended.
var endedReasons = map[string]Status{
	"customer-did-not-answer":                     StatusMissed,
	"customer-did-not-give-microphone-permission": StatusFailed,
	"customer-busy":                               StatusBusy,
	"voicemail":                                   StatusMissed,
	"silence-timed-out":                           StatusMissed,
	"assistant-error":                             StatusFailed,
	"pipeline-error":                              StatusFailed,
	"twilio-failed-to-connect-call":               StatusFailed,
	"customer-ended-call":                         StatusCompleted,
	"assistant-ended-call":                        StatusCompleted,
	"exceeded-max-duration":                       StatusCompleted,
}

func normalizeRaw(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("_", "-", " ", "-").Replace(s)
}

// LookupStatus maps a provider status and reports whether the table knew it.
func LookupStatus(provider Provider, raw string) (Status, bool) {
	table, ok := statusTables[provider]
	if !ok {
		table = statusTables[ProviderAutomation]
	}
	st, ok := table[normalizeRaw(raw)]
	if !ok {
		return StatusAnswered, false
	}
	return st, true
}

// MapStatus maps a provider status onto the five normalized values. Unknown
// statuses become answered: a best guess beats dropping the event.
func MapStatus(provider Provider, raw string) Status {
	st, _ := LookupStatus(provider, raw)
	return st
}

// MapEndedReason maps the platform's ended reason. Error reasons share a suffix
// family ("...-error", "...-failed"), matched after the table.
func MapEndedReason(reason string) (Status, bool) {
	r := normalizeRaw(reason)
	if r == "" {
		return "", false
	}
	if st, ok := endedReasons[r]; ok {
		return st, true
	}
	if strings.HasSuffix(r, "-error") || strings.Contains(r, "-failed") || strings.HasPrefix(r, "pipeline-error") {
		return StatusFailed, true
	}
	return "", false
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}
