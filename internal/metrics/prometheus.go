package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

var (
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	EnrichmentSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_steps_total",
			Help: "Best-effort booking enrichment steps (calendar, email) by outcome",
		},
		[]string{"step", "outcome"},
	)

	ProvisioningOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_operations_total",
			Help: "Voice-platform synchronizer operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Assistant tool invocations handled by this service",
		},
		[]string{"tool", "outcome"},
	)

	ProvisioningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provisioning_operation_duration_seconds",
			Help:    "Wall time of synchronizer operations including platform round-trips",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

var initOnce sync.Once

// Init registers metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(WebhookEvents)
		prometheus.MustRegister(EnrichmentSteps)
		prometheus.MustRegister(ProvisioningOperations)
		prometheus.MustRegister(ProvisioningDuration)
		prometheus.MustRegister(ToolCalls)
	})
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
