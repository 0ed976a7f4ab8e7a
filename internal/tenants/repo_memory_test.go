package tenants

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+34 600-111-222":  "34600111222",
		"tel:+34600111222": "34600111222",
		"(555) 010 2000":   "5550102000",
		"anonymous":        "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryRepo_GetByPhoneMatchesDigits(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Put(Tenant{ID: "t1", Name: "Acme Dental", Phone: "+34 600 111 222", Status: StatusActive}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetByPhone(context.Background(), "+34600111222")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("expected t1, got %q", got.ID)
	}

	if _, err := repo.GetByPhone(context.Background(), "+1 555"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByPhone(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty phone, got %v", err)
	}
}

func TestMemoryRepo_PhoneIsUnique(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Put(Tenant{ID: "t1", Phone: "+34600111222"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.Put(Tenant{ID: "t2", Phone: "34 600 111 222"}); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
	// Re-putting the same tenant is fine.
	if err := repo.Put(Tenant{ID: "t1", Phone: "+34600111222", Name: "renamed"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestMemoryRepo_UpdateCalendar(t *testing.T) {
	repo := NewMemoryRepo()
	_ = repo.Put(Tenant{ID: "t1"})
	ctx := context.Background()

	if err := repo.UpdateCalendar(ctx, "t1", &CalendarCredentials{Provider: "google", RefreshToken: "r"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.Get(ctx, "t1")
	if !got.CalendarConnected() {
		t.Fatalf("expected calendar connected")
	}

	if err := repo.UpdateCalendar(ctx, "t1", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = repo.Get(ctx, "t1")
	if got.CalendarConnected() {
		t.Fatalf("expected calendar cleared")
	}

	if err := repo.UpdateCalendar(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTenant_CanReceiveCalls(t *testing.T) {
	for status, want := range map[Status]bool{StatusActive: true, StatusTrial: true, StatusSuspended: false, "": false} {
		if got := (Tenant{Status: status}).CanReceiveCalls(); got != want {
			t.Fatalf("status %q: got %v want %v", status, got, want)
		}
	}
}
