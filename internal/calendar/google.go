package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/config"
	"receptionist-platform/internal/tenants"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var (
	ErrNotConfigured = errors.New("calendar: google oauth client not configured")
	ErrNotConnected  = errors.New("calendar: tenant has no connected calendar")
)

const (
	providerGoogle  = "google"
	primaryCalendar = "primary"
)

// Provider is the Google Calendar integration for all tenants.
type Provider struct {
	oauth       *oauth2.Config
	tenants     tenants.Repository
	stateSecret []byte
	stateTTL    time.Duration
	clock       func() time.Time

	// endpoint and httpClient override the API base for tests.
	endpoint   string
	httpClient *http.Client
}

type Option func(*Provider)

// WithEndpoint points the Calendar API and OAuth token endpoint at base.
func WithEndpoint(base string, client *http.Client) Option {
	return func(p *Provider) {
		base = strings.TrimRight(base, "/")
		p.endpoint = base + "/"
		p.httpClient = client
		p.oauth.Endpoint = oauth2.Endpoint{AuthURL: base + "/auth", TokenURL: base + "/token"}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.clock = now }
}

// New builds the provider. stateSecret signs the OAuth state parameter.
func New(cfg config.GoogleConfig, stateSecret string, tenantRepo tenants.Repository, opts ...Option) *Provider {
	p := &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		},
		tenants:     tenantRepo,
		stateSecret: []byte(stateSecret),
		stateTTL:    15 * time.Minute,
		clock:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Configured() bool {
	return p != nil && p.oauth.ClientID != "" && p.oauth.ClientSecret != "" && len(p.stateSecret) > 0
}

/* ===================== OAUTH ===================== */

// AuthURL returns the consent URL. The state carries the tenant id, signed and short-lived.
func (p *Provider) AuthURL(tenantID, userID string) (string, error) {
	if !p.Configured() {
		return "", ErrNotConfigured
	}
	state, err := p.signState(p.clock(), tenantID, userID)
	if err != nil {
		return "", err
	}
	// offline + consent so Google returns a refresh token.
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Exchange completes the OAuth flow and stores the tenant's credentials.
func (p *Provider) Exchange(ctx context.Context, state, code string) (string, error) {
	if !p.Configured() {
		return "", ErrNotConfigured
	}
	tenantID, _, err := p.ParseState(state)
	if err != nil {
		return "", err
	}
	t, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}

	tok, err := p.oauth.Exchange(p.clientCtx(ctx), code)
	if err != nil {
		return "", fmt.Errorf("calendar: exchange code: %w", err)
	}

	creds := tenants.CalendarCredentials{
		Provider:     providerGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		CalendarID:   primaryCalendar,
	}
	// Google omits the refresh token on re-consent for an already-authorized client.
	if creds.RefreshToken == "" && t.Calendar != nil {
		creds.RefreshToken = t.Calendar.RefreshToken
	}
	if creds.RefreshToken == "" {
		return "", errors.New("calendar: provider returned no refresh token")
	}
	if err := p.tenants.UpdateCalendar(ctx, tenantID, &creds); err != nil {
		return "", err
	}
	return tenantID, nil
}

// Status reports the tenant's connection state.
type Status struct {
	Connected  bool       `json:"connected"`
	Provider   string     `json:"provider,omitempty"`
	CalendarID string     `json:"calendar_id,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	Configured bool       `json:"configured"`
}

func (p *Provider) Status(ctx context.Context, tenantID string) (Status, error) {
	t, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}
	st := Status{Configured: p.Configured(), Connected: t.CalendarConnected()}
	if t.Calendar != nil && st.Connected {
		st.Provider = t.Calendar.Provider
		st.CalendarID = t.Calendar.CalendarID
		exp := t.Calendar.Expiry
		st.Expiry = &exp
	}
	return st, nil
}

// Disconnect clears the stored credentials.
func (p *Provider) Disconnect(ctx context.Context, tenantID string) error {
	if _, err := p.tenants.Get(ctx, tenantID); err != nil {
		return err
	}
	return p.tenants.UpdateCalendar(ctx, tenantID, nil)
}

/* ===================== EVENTS ===================== */

// CreateEvent inserts the appointment into the tenant's calendar.
func (p *Provider) CreateEvent(ctx context.Context, t tenants.Tenant, a booking.Appointment) (string, error) {
	svc, calID, err := p.service(ctx, t)
	if err != nil {
		return "", err
	}
	loc := t.Location()
	start, err := a.Start(loc)
	if err != nil {
		return "", fmt.Errorf("calendar: appointment start: %w", err)
	}
	end := start.Add(a.Duration())

	ev := &gcal.Event{
		Summary:     eventSummary(t, a),
		Description: eventDescription(a),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()},
	}
	if a.ClientEmail != "" {
		ev.Attendees = []*gcal.EventAttendee{{Email: a.ClientEmail, DisplayName: a.ClientName}}
	}

	created, err := svc.Events.Insert(calID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

// Busy reports whether the tenant's calendar has any busy block in [from, to).
func (p *Provider) Busy(ctx context.Context, t tenants.Tenant, from, to time.Time) (bool, error) {
	svc, calID, err := p.service(ctx, t)
	if err != nil {
		return false, err
	}
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("calendar: freebusy: %w", err)
	}
	cal, ok := resp.Calendars[calID]
	if !ok {
		return false, nil
	}
	if len(cal.Errors) > 0 {
		return false, fmt.Errorf("calendar: freebusy: %s", cal.Errors[0].Reason)
	}
	return len(cal.Busy) > 0, nil
}

func (p *Provider) service(ctx context.Context, t tenants.Tenant) (*gcal.Service, string, error) {
	if !p.Configured() {
		return nil, "", ErrNotConfigured
	}
	if !t.CalendarConnected() {
		return nil, "", ErrNotConnected
	}
	creds := *t.Calendar
	ts := &persistingTokenSource{
		ctx:      ctx,
		base:     p.oauth.TokenSource(p.clientCtx(ctx), tokenFrom(creds)),
		tenantID: t.ID,
		creds:    creds,
		repo:     p.tenants,
		last:     creds.AccessToken,
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(tokenFrom(creds), ts))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := gcal.NewService(p.clientCtx(ctx), opts...)
	if err != nil {
		return nil, "", err
	}
	calID := creds.CalendarID
	if calID == "" {
		calID = primaryCalendar
	}
	return svc, calID, nil
}

// clientCtx makes oauth2 use the test HTTP client when one is set.
func (p *Provider) clientCtx(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func eventSummary(t tenants.Tenant, a booking.Appointment) string {
	label := "Appointment"
	if assistant.IsSpanish(assistant.LanguageOf(t)) {
		label = "Cita"
	}
	if a.Service != "" {
		return fmt.Sprintf("%s: %s - %s", label, a.Service, a.ClientName)
	}
	return fmt.Sprintf("%s - %s", label, a.ClientName)
}

func eventDescription(a booking.Appointment) string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"Name", a.ClientName},
		{"Phone", a.ClientPhone},
		{"Email", a.ClientEmail},
		{"Service", a.Service},
		{"Notes", a.Notes},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
		}
	}
	for k, v := range a.Custom {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return strings.TrimRight(b.String(), "\n")
}
