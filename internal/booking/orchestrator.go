package booking

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"receptionist-platform/internal/calls"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/pkg/logger"

	"github.com/google/uuid"
)

// Enrichment step names.
const (
	StepCalendar = "calendar"
	StepEmail    = "email"
)

// CalendarBooker creates events on the tenant's connected calendar.
type CalendarBooker interface {
	CreateEvent(ctx context.Context, t tenants.Tenant, a Appointment) (eventID string, err error)
}

// BusyChecker reports whether the tenant's calendar has anything in [from, to).
type BusyChecker interface {
	Busy(ctx context.Context, t tenants.Tenant, from, to time.Time) (bool, error)
}

// Mailer sends the client confirmation.
type Mailer interface {
	SendConfirmation(ctx context.Context, t tenants.Tenant, a Appointment) error
}

// Request is an "appointment requested" event from a webhook or a tool call.
type Request struct {
	TenantID string `json:"tenant_id"`

	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Notes   string `json:"notes"`

	Custom map[string]any `json:"custom,omitempty"`
	Source Source         `json:"source"`
	CallID string         `json:"call_id,omitempty"`
}

// StepOutcome reports one enrichment step.
type StepOutcome struct {
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Result is returned whenever the appointment itself was created.
type Result struct {
	AppointmentID string        `json:"appointmentId"`
	Success       bool          `json:"success"`
	Date          string        `json:"date"`
	DateAmbiguous bool          `json:"dateAmbiguous,omitempty"`
	Enrichments   []StepOutcome `json:"enrichments"`
}

// Orchestrator books appointments: one mandatory write followed by independent,
// best-effort enrichments.
type Orchestrator struct {
	repo     Repository
	tenants  tenants.Repository
	calendar CalendarBooker
	busy     BusyChecker
	mailer   Mailer
	clock    func() time.Time
}

// New builds an Orchestrator. calendar, busy and mailer may be nil; the matching
// steps are then skipped.
func New(repo Repository, tenantRepo tenants.Repository, calendar CalendarBooker, busy BusyChecker, mailer Mailer) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		tenants:  tenantRepo,
		calendar: calendar,
		busy:     busy,
		mailer:   mailer,
		clock:    time.Now,
	}
}

/* ===================== BOOK ===================== */

// Book validates req, creates the appointment, then tries calendar and email.
// Success depends only on the appointment write; enrichment failures are logged,
// counted and reported in Result.Enrichments.
//
// Enrichments run on a context detached from the caller's cancellation: once the
// appointment exists they are not abandoned because a webhook caller hung up.
func (o *Orchestrator) Book(ctx context.Context, req Request) (Result, error) {
	date := calls.NormalizeDateDetailed(strings.TrimSpace(req.Date))
	clock := normalizeClock(req.Time)
	if errs := validate(req, date.Value, clock); len(errs) > 0 {
		return Result{}, &ValidationError{Errors: errs}
	}

	t, err := o.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return Result{}, err
	}

	log := logger.From(ctx).With("tenant_id", t.ID)
	if date.Ambiguous {
		log.Info("ambiguous day-first date read as DD-MM-YYYY", "raw", req.Date, "date", date.Value)
	}

	source := req.Source
	if source == "" {
		source = SourceWebhook
	}
	a := Appointment{
		ID:          uuid.NewString(),
		TenantID:    t.ID,
		ClientName:  strings.TrimSpace(req.Name),
		ClientEmail: strings.TrimSpace(req.Email),
		ClientPhone: strings.TrimSpace(req.Phone),
		Service:     strings.TrimSpace(req.Service),
		Date:        date.Value,
		Time:        clock,
		Notes:       strings.TrimSpace(req.Notes),
		Custom:      req.Custom,
		Source:      source,
		CallID:      req.CallID,
		Status:      StatusConfirmed,
		CreatedAt:   o.clock().UTC(),
	}
	a.DurationMinutes = int(DefaultDuration / time.Minute)

	if err := o.repo.Create(ctx, a); err != nil {
		return Result{}, fmt.Errorf("booking: create appointment: %w", err)
	}
	log = log.With("appointment_id", a.ID)
	log.Info("appointment created", "date", a.Date, "time", a.Time, "source", a.Source)

	ectx := context.WithoutCancel(ctx)
	res := Result{
		AppointmentID: a.ID,
		Success:       true,
		Date:          a.Date,
		DateAmbiguous: date.Ambiguous,
	}
	res.Enrichments = append(res.Enrichments, o.enrichCalendar(ectx, t, &a))
	res.Enrichments = append(res.Enrichments, o.enrichEmail(ectx, t, a))
	return res, nil
}

func (o *Orchestrator) enrichCalendar(ctx context.Context, t tenants.Tenant, a *Appointment) StepOutcome {
	if o.calendar == nil || !t.CalendarConnected() {
		return skipped(StepCalendar)
	}
	eventID, err := o.calendar.CreateEvent(ctx, t, *a)
	if err != nil {
		return failed(ctx, StepCalendar, err)
	}
	a.CalendarEventID = eventID
	if err := o.repo.SetCalendarEventID(ctx, t.ID, a.ID, eventID); err != nil {
		logger.From(ctx).Warn("store calendar event id failed", "tenant_id", t.ID, "appointment_id", a.ID, "err", err)
	}
	return succeeded(StepCalendar)
}

func (o *Orchestrator) enrichEmail(ctx context.Context, t tenants.Tenant, a Appointment) StepOutcome {
	if o.mailer == nil || a.ClientEmail == "" {
		return skipped(StepEmail)
	}
	if err := o.mailer.SendConfirmation(ctx, t, a); err != nil {
		return failed(ctx, StepEmail, err)
	}
	return succeeded(StepEmail)
}

func skipped(step string) StepOutcome {
	metrics.EnrichmentSteps.WithLabelValues(step, metrics.OutcomeSkipped).Inc()
	return StepOutcome{Step: step, Outcome: metrics.OutcomeSkipped}
}

func succeeded(step string) StepOutcome {
	metrics.EnrichmentSteps.WithLabelValues(step, metrics.OutcomeOK).Inc()
	return StepOutcome{Step: step, Outcome: metrics.OutcomeOK}
}

func failed(ctx context.Context, step string, err error) StepOutcome {
	metrics.EnrichmentSteps.WithLabelValues(step, metrics.OutcomeError).Inc()
	logger.From(ctx).Warn("booking enrichment failed", "step", step, "err", err)
	return StepOutcome{Step: step, Outcome: metrics.OutcomeError, Error: err.Error()}
}

/* ===================== AVAILABILITY ===================== */

// Availability answers a check_availability request.
type Availability struct {
	Available bool   `json:"available"`
	Date      string `json:"date"`
	Time      string `json:"time"`

	// Alternatives are the next free slots the same day when the requested one is taken.
	Alternatives []string `json:"alternatives,omitempty"`
}

const maxAlternatives = 3

// closingHour bounds alternative suggestions; opening hours are free text and not parsed.
const closingHour = 20

// CheckAvailability reports whether date/time is free, consulting stored
// appointments and, when connected, the calendar. Calendar failures are logged
// and the slot is judged on stored appointments alone.
func (o *Orchestrator) CheckAvailability(ctx context.Context, t tenants.Tenant, rawDate, rawTime string) (Availability, error) {
	date := calls.NormalizeDate(strings.TrimSpace(rawDate))
	clock := normalizeClock(rawTime)

	var errs []string
	if !isISODate(date) {
		errs = append(errs, "date must be YYYY-MM-DD or DD-MM-YYYY")
	}
	if clock != "" && !isClock(clock) {
		errs = append(errs, "time must be HH:MM")
	}
	if len(errs) > 0 {
		return Availability{}, &ValidationError{Errors: errs}
	}

	booked, err := o.repo.ListByDate(ctx, t.ID, date)
	if err != nil {
		return Availability{}, err
	}
	loc := t.Location()

	out := Availability{Date: date, Time: clock}
	if clock == "" {
		// No time given: list the first free slots of the day.
		out.Alternatives = o.freeSlots(ctx, t, loc, date, "09:00", booked, maxAlternatives, true)
		out.Available = len(out.Alternatives) > 0
		return out, nil
	}

	out.Available = o.slotFree(ctx, t, loc, date, clock, booked)
	if !out.Available {
		out.Alternatives = o.freeSlots(ctx, t, loc, date, clock, booked, maxAlternatives, false)
	}
	return out, nil
}

func (o *Orchestrator) freeSlots(ctx context.Context, t tenants.Tenant, loc *time.Location, date, from string, booked []Appointment, n int, inclusive bool) []string {
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+from, loc)
	if err != nil {
		return nil
	}
	if !inclusive {
		start = start.Add(DefaultDuration)
	}
	var out []string
	for s := start; s.Hour() < closingHour && s.Format("2006-01-02") == date && len(out) < n; s = s.Add(DefaultDuration) {
		c := s.Format("15:04")
		if o.slotFree(ctx, t, loc, date, c, booked) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) slotFree(ctx context.Context, t tenants.Tenant, loc *time.Location, date, clock string, booked []Appointment) bool {
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return false
	}
	end := start.Add(DefaultDuration)
	for _, b := range booked {
		bs, err := b.Start(loc)
		if err != nil {
			continue
		}
		if start.Before(bs.Add(b.Duration())) && bs.Before(end) {
			return false
		}
	}
	if o.busy != nil && t.CalendarConnected() {
		busy, err := o.busy.Busy(ctx, t, start, end)
		if err != nil {
			logger.From(ctx).Warn("calendar free/busy failed, using stored appointments only", "tenant_id", t.ID, "err", err)
			return true
		}
		return !busy
	}
	return true
}

/* ===================== VALIDATION ===================== */

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockRe   = regexp.MustCompile(`^([01]?\d|2[0-3])[:.hH]?([0-5]\d)?$`)
)

func validate(req Request, date, clock string) []string {
	var errs []string
	if strings.TrimSpace(req.TenantID) == "" {
		errs = append(errs, "tenant_id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		errs = append(errs, "name is required")
	}
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if email == "" && phone == "" {
		errs = append(errs, "email or phone is required")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			errs = append(errs, "email is not a valid address")
		}
	}
	if strings.TrimSpace(req.Date) == "" {
		errs = append(errs, "date is required")
	} else if !isISODate(date) {
		errs = append(errs, "date must be YYYY-MM-DD or DD-MM-YYYY")
	}
	if strings.TrimSpace(req.Time) == "" {
		errs = append(errs, "time is required")
	} else if !isClock(clock) {
		errs = append(errs, "time must be HH:MM")
	}
	return errs
}

func isISODate(s string) bool {
	if !isoDateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}

// normalizeClock accepts "9", "9:30", "09.30", "17h", "17h30" and returns HH:MM.
// Unparseable input is returned trimmed so validation can report it.
func normalizeClock(raw string) string {
	s := strings.TrimSpace(raw)
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	}
	return fmt.Sprintf("%02d:%02d", h, mins)
}
