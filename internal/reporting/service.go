package reporting

import (
	"context"
	"errors"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource lists a tenant's call events created in [from, to).
type CallSource interface {
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallEvent, error)
}

// BookingSource counts appointments created in [from, to).
type BookingSource interface {
	CountCreated(ctx context.Context, tenantID string, from, to time.Time, source booking.Source) (int, error)
}

type Service struct {
	calls    CallSource
	bookings BookingSource
}

func NewService(callSrc CallSource, bookings BookingSource) *Service {
	return &Service{calls: callSrc, bookings: bookings}
}

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" || !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.ListByTenant(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID, Range: req.Range, ByStatus: make(map[calls.Status]int, len(calls.Statuses))}
	for _, st := range calls.Statuses {
		out.ByStatus[st] = 0
	}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.TotalCost += c.Cost
		out.TokensUsed += c.TokensUsed
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		st := c.Status
		if !st.Valid() {
			st = calls.StatusAnswered
		}
		out.ByStatus[st]++
		switch c.Direction {
		case calls.DirectionOutbound:
			out.OutboundCalls++
		default:
			out.InboundCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

// ConversionMetrics counts connected calls and assistant-booked appointments.
func (s *Service) ConversionMetrics(ctx context.Context, req CallsSummaryRequest) (ConversionMetrics, error) {
	summary, err := s.CallsSummary(ctx, req)
	if err != nil {
		return ConversionMetrics{}, err
	}
	if s.bookings == nil {
		return ConversionMetrics{}, errors.New("reporting: booking source not configured")
	}
	conv, err := s.bookings.CountCreated(ctx, req.TenantID, req.Range.From, req.Range.To, booking.SourceAssistant)
	if err != nil {
		return ConversionMetrics{}, err
	}

	out := ConversionMetrics{
		TenantID:       req.TenantID,
		Range:          req.Range,
		CallsAttempted: summary.TotalCalls,
		CallsConnected: summary.ByStatus[calls.StatusAnswered] + summary.ByStatus[calls.StatusCompleted],
		Conversions:    conv,
	}
	if out.CallsAttempted > 0 {
		out.ConnectionRate = float64(out.CallsConnected) / float64(out.CallsAttempted)
		out.ConversionRate = float64(out.Conversions) / float64(out.CallsAttempted)
	}
	return out, nil
}
