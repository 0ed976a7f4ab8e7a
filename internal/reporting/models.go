package reporting

import (
	"time"

	"receptionist-platform/internal/calls"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: TenantID is required.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	TotalCalls int `json:"total_calls"`
	// ByStatus always carries every normalized status, zero or not.
	ByStatus map[calls.Status]int `json:"by_status"`

	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalCost  float64 `json:"total_cost"`
	TokensUsed int     `json:"tokens_used"`

	RecordedCalls int `json:"recorded_calls"`
}

// ConversionMetrics relates calls to the appointments the assistant booked.
type ConversionMetrics struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	CallsAttempted int `json:"calls_attempted"`
	CallsConnected int `json:"calls_connected"`
	Conversions    int `json:"conversions"`

	ConnectionRate float64 `json:"connection_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}
