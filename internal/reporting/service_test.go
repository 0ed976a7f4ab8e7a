package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/calls"
)

func seedCalls(t *testing.T, repo *calls.MemoryRepo, now time.Time) {
	t.Helper()
	rows := []calls.CallEvent{
		{ID: "1", TenantID: "t1", ProviderCallID: "c1", Status: calls.StatusCompleted, Direction: calls.DirectionInbound, DurationSeconds: 30, Cost: 0.1, TokensUsed: 100, RecordingURL: "https://r/1", CreatedAt: now},
		{ID: "2", TenantID: "t1", ProviderCallID: "c2", Status: calls.StatusMissed, Direction: calls.DirectionInbound, CreatedAt: now},
		{ID: "3", TenantID: "t1", ProviderCallID: "c3", Status: calls.StatusAnswered, Direction: calls.DirectionOutbound, DurationSeconds: 60, Cost: 0.2, CreatedAt: now},
		{ID: "4", TenantID: "t2", ProviderCallID: "c4", Status: calls.StatusCompleted, DurationSeconds: 50, CreatedAt: now},
		{ID: "5", TenantID: "t1", ProviderCallID: "c5", Status: calls.StatusBusy, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range rows {
		if err := repo.Create(context.Background(), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestReporting_CallsSummary(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := calls.NewMemoryRepo()
	seedCalls(t, repo, now)
	svc := NewService(repo, booking.NewMemoryRepo())

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{TenantID: "t1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 {
		t.Fatalf("expected 3 calls (tenant and range isolated), got %d", out.TotalCalls)
	}
	if len(out.ByStatus) != 5 {
		t.Fatalf("expected all five statuses, got %v", out.ByStatus)
	}
	if out.ByStatus[calls.StatusCompleted] != 1 || out.ByStatus[calls.StatusMissed] != 1 || out.ByStatus[calls.StatusBusy] != 0 {
		t.Fatalf("unexpected breakdown: %v", out.ByStatus)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 30 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.InboundCalls != 2 || out.OutboundCalls != 1 || out.RecordedCalls != 1 || out.TokensUsed != 100 {
		t.Fatalf("unexpected counters: %+v", out)
	}
}

func TestReporting_InvalidRequest(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), booking.NewMemoryRepo())
	now := time.Now()
	for _, req := range []CallsSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{TenantID: "t1"},
		{TenantID: "t1", Range: TimeRange{From: now, To: now}},
	} {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestReporting_ConversionMetrics(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := calls.NewMemoryRepo()
	seedCalls(t, repo, now)

	bookings := booking.NewMemoryRepo()
	for i, src := range []booking.Source{booking.SourceAssistant, booking.SourceWebhook} {
		a := booking.Appointment{ID: string(rune('a' + i)), TenantID: "t1", Source: src, Status: booking.StatusConfirmed, CreatedAt: now}
		if err := bookings.Create(context.Background(), a); err != nil {
			t.Fatalf("seed booking: %v", err)
		}
	}

	svc := NewService(repo, bookings)
	m, err := svc.ConversionMetrics(context.Background(), CallsSummaryRequest{TenantID: "t1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.CallsAttempted != 3 || m.CallsConnected != 2 || m.Conversions != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.ConnectionRate == 0 || m.ConversionRate == 0 {
		t.Fatalf("expected non-zero rates")
	}
}
