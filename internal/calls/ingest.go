package calls

import (
	"context"
	"errors"
	"time"

	"receptionist-platform/pkg/logger"

	"github.com/google/uuid"
)

// Ingestor turns normalized webhook updates into stored call events.
type Ingestor struct {
	repo  Repository
	clock func() time.Time
}

func NewIngestor(repo Repository) *Ingestor {
	return &Ingestor{repo: repo, clock: time.Now}
}

// Ingest creates the call event for (tenant, call id) or applies u to the existing one.
// Retried deliveries of the same call converge on one row.
func (i *Ingestor) Ingest(ctx context.Context, u Update) (CallEvent, bool, error) {
	if u.TenantID == "" || u.ProviderCallID == "" {
		return CallEvent{}, false, ErrInvalidArgument
	}

	existing, err := i.repo.Get(ctx, u.TenantID, u.ProviderCallID)
	switch {
	case err == nil:
		out, err := i.update(ctx, existing, u)
		return out, false, err
	case !errors.Is(err, ErrNotFound):
		return CallEvent{}, false, err
	}

	now := i.clock().UTC()
	e := CallEvent{
		ID:             uuid.NewString(),
		TenantID:       u.TenantID,
		Provider:       u.Provider,
		ProviderCallID: u.ProviderCallID,
		Direction:      DirectionInbound,
		Status:         StatusAnswered,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	u.apply(&e)

	err = i.repo.Create(ctx, e)
	if errors.Is(err, ErrDuplicate) {
		// A concurrent delivery won the insert; apply ours on top.
		logger.From(ctx).Debug("call insert raced, updating", "tenant_id", u.TenantID, "call_id", u.ProviderCallID)
		existing, err := i.repo.Get(ctx, u.TenantID, u.ProviderCallID)
		if err != nil {
			return CallEvent{}, false, err
		}
		out, err := i.update(ctx, existing, u)
		return out, false, err
	}
	if err != nil {
		return CallEvent{}, false, err
	}
	return e, true, nil
}

// Patch applies u to a call found by provider call id alone. If u carries a
// tenant id it must match the stored one. Without a tenant id, an id shared
// by several tenants yields ErrAmbiguousCallID and nothing is written.
func (i *Ingestor) Patch(ctx context.Context, providerCallID string, u Update) (CallEvent, error) {
	if providerCallID == "" {
		return CallEvent{}, ErrInvalidArgument
	}
	var (
		existing CallEvent
		err      error
	)
	if u.TenantID != "" {
		existing, err = i.repo.Get(ctx, u.TenantID, providerCallID)
	} else {
		existing, err = i.repo.FindByCallID(ctx, providerCallID)
	}
	if err != nil {
		return CallEvent{}, err
	}
	return i.update(ctx, existing, u)
}

func (i *Ingestor) update(ctx context.Context, e CallEvent, u Update) (CallEvent, error) {
	u.apply(&e)
	e.UpdatedAt = i.clock().UTC()
	if err := i.repo.Update(ctx, e); err != nil {
		return CallEvent{}, err
	}
	return e, nil
}
