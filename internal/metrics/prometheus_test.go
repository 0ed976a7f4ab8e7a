package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if Outcome(nil) != OutcomeOK || Outcome(errors.New("x")) != OutcomeError {
		t.Fatalf("unexpected outcome mapping")
	}
}

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(EnrichmentSteps.WithLabelValues("calendar", OutcomeError))
	EnrichmentSteps.WithLabelValues("calendar", OutcomeError).Inc()
	if got := testutil.ToFloat64(EnrichmentSteps.WithLabelValues("calendar", OutcomeError)); got != before+1 {
		t.Fatalf("expected counter increment, got %v", got)
	}
}
