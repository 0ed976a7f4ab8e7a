package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"receptionist-platform/internal/tenants"
)

type fakeCalendar struct {
	err    error
	events []Appointment
	busy   bool
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ tenants.Tenant, a Appointment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, a)
	return "evt-1", nil
}

func (f *fakeCalendar) Busy(_ context.Context, _ tenants.Tenant, _, _ time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.busy, nil
}

type fakeMailer struct {
	err  error
	sent []Appointment
}

func (f *fakeMailer) SendConfirmation(_ context.Context, _ tenants.Tenant, a Appointment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

func newTenants(t *testing.T, connected bool) *tenants.MemoryRepo {
	t.Helper()
	repo := tenants.NewMemoryRepo()
	tn := tenants.Tenant{ID: "t1", Name: "Acme Dental", Status: tenants.StatusActive, Timezone: "Europe/Madrid"}
	if connected {
		tn.Calendar = &tenants.CalendarCredentials{Provider: "google", RefreshToken: "r"}
	}
	if err := repo.Put(tn); err != nil {
		t.Fatalf("put tenant: %v", err)
	}
	return repo
}

func validRequest() Request {
	return Request{
		TenantID: "t1",
		Name:     "Ana García",
		Email:    "ana@example.com",
		Phone:    "+34600000002",
		Service:  "Limpieza",
		Date:     "03-11-2025",
		Time:     "10:30",
	}
}

func TestBook_CalendarFailureStillSucceeds(t *testing.T) {
	repo := NewMemoryRepo()
	cal := &fakeCalendar{err: errors.New("calendar down")}
	mailer := &fakeMailer{}
	o := New(repo, newTenants(t, true), cal, cal, mailer)

	res, err := o.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Success || res.AppointmentID == "" {
		t.Fatalf("expected success with id, got %+v", res)
	}
	if res.Enrichments[0].Step != StepCalendar || res.Enrichments[0].Outcome != "error" {
		t.Fatalf("expected calendar error outcome, got %+v", res.Enrichments)
	}
	if res.Enrichments[1].Outcome != "ok" || len(mailer.sent) != 1 {
		t.Fatalf("email must still be attempted, got %+v", res.Enrichments)
	}

	a, err := repo.Get(context.Background(), "t1", res.AppointmentID)
	if err != nil {
		t.Fatalf("appointment not stored: %v", err)
	}
	if a.Date != "2025-11-03" || a.Time != "10:30" {
		t.Fatalf("expected normalized date/time, got %s %s", a.Date, a.Time)
	}
	if !res.DateAmbiguous {
		t.Fatalf("03-11 is ambiguous and must be flagged")
	}
}

func TestBook_AllEnrichmentsSucceed(t *testing.T) {
	repo := NewMemoryRepo()
	cal := &fakeCalendar{}
	o := New(repo, newTenants(t, true), cal, cal, &fakeMailer{})

	res, err := o.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, e := range res.Enrichments {
		if e.Outcome != "ok" {
			t.Fatalf("expected ok, got %+v", e)
		}
	}
	a, _ := repo.Get(context.Background(), "t1", res.AppointmentID)
	if a.CalendarEventID != "evt-1" {
		t.Fatalf("expected calendar event id stored")
	}
}

func TestBook_SkipsWhenNotConnectedOrNoEmail(t *testing.T) {
	o := New(NewMemoryRepo(), newTenants(t, false), &fakeCalendar{}, nil, &fakeMailer{})
	req := validRequest()
	req.Email = ""

	res, err := o.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, e := range res.Enrichments {
		if e.Outcome != "skipped" {
			t.Fatalf("expected skipped, got %+v", e)
		}
	}
}

func TestBook_MailerFailureIsNotFatal(t *testing.T) {
	o := New(NewMemoryRepo(), newTenants(t, false), nil, nil, &fakeMailer{err: errors.New("smtp refused")})
	res, err := o.Book(context.Background(), validRequest())
	if err != nil || !res.Success {
		t.Fatalf("expected success, got %+v %v", res, err)
	}
	if res.Enrichments[1].Error != "smtp refused" {
		t.Fatalf("expected email error reported, got %+v", res.Enrichments)
	}
}

func TestBook_ValidationReportsAllErrors(t *testing.T) {
	o := New(NewMemoryRepo(), newTenants(t, false), nil, nil, nil)
	_, err := o.Book(context.Background(), Request{TenantID: "t1", Email: "not-an-email", Date: "41-11-2025", Time: "25:99"})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Errors) != 4 {
		t.Fatalf("expected 4 errors (name, email, date, time), got %v", vErr.Errors)
	}
}

func TestBook_CreateFailureIsFatal(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailCreate = errors.New("db down")
	cal := &fakeCalendar{}
	o := New(repo, newTenants(t, true), cal, cal, &fakeMailer{})

	if _, err := o.Book(context.Background(), validRequest()); err == nil {
		t.Fatalf("expected error")
	}
	if len(cal.events) != 0 {
		t.Fatalf("no enrichment may run without an appointment")
	}
}

func TestBook_CancelledContextStillEnriches(t *testing.T) {
	cal := &ctxCalendar{}
	o := New(NewMemoryRepo(), newTenants(t, true), cal, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o.repo = &cancelOnCreate{Repository: NewMemoryRepo(), cancel: cancel}

	res, err := o.Book(ctx, validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Enrichments[0].Outcome != "ok" {
		t.Fatalf("calendar step must not see caller cancellation, got %+v", res.Enrichments[0])
	}
}

type ctxCalendar struct{}

func (ctxCalendar) CreateEvent(ctx context.Context, _ tenants.Tenant, _ Appointment) (string, error) {
	return "evt", ctx.Err()
}

type cancelOnCreate struct {
	Repository
	cancel func()
}

func (c *cancelOnCreate) Create(ctx context.Context, a Appointment) error {
	err := c.Repository.Create(ctx, a)
	c.cancel()
	return err
}

func TestCheckAvailability(t *testing.T) {
	repo := NewMemoryRepo()
	o := New(repo, newTenants(t, false), nil, nil, nil)
	tn, _ := o.tenants.Get(context.Background(), "t1")

	if _, err := o.Book(context.Background(), validRequest()); err != nil {
		t.Fatalf("book: %v", err)
	}

	got, err := o.CheckAvailability(context.Background(), tn, "2025-11-03", "10:45")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.Available {
		t.Fatalf("10:45 overlaps the 10:30 booking")
	}
	if len(got.Alternatives) != 3 || got.Alternatives[0] != "11:15" {
		t.Fatalf("unexpected alternatives: %v", got.Alternatives)
	}

	got, err = o.CheckAvailability(context.Background(), tn, "03/11/2025", "11")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.Available || got.Time != "11:00" || got.Date != "2025-11-03" {
		t.Fatalf("expected 11:00 free, got %+v", got)
	}

	if _, err := o.CheckAvailability(context.Background(), tn, "someday", ""); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestCheckAvailability_CalendarBusyAndFailure(t *testing.T) {
	cal := &fakeCalendar{busy: true}
	o := New(NewMemoryRepo(), newTenants(t, true), nil, cal, nil)
	tn, _ := o.tenants.Get(context.Background(), "t1")

	got, _ := o.CheckAvailability(context.Background(), tn, "2025-11-03", "12:00")
	if got.Available {
		t.Fatalf("calendar says busy")
	}

	cal.err = errors.New("quota")
	got, _ = o.CheckAvailability(context.Background(), tn, "2025-11-03", "12:00")
	if !got.Available {
		t.Fatalf("calendar failure falls back to stored appointments")
	}
}

func TestNormalizeClock(t *testing.T) {
	cases := map[string]string{
		"9":     "09:00",
		"9:30":  "09:30",
		"09.30": "09:30",
		"17h":   "17:00",
		"17h30": "17:30",
		"1730":  "17:30",
		"noon":  "noon",
	}
	for in, want := range cases {
		if got := normalizeClock(in); got != want {
			t.Fatalf("normalizeClock(%q) = %q, want %q", in, got, want)
		}
	}
}
