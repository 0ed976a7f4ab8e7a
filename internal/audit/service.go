package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	// List returns a tenant's events, newest first.
	List(ctx context.Context, tenantID string, limit int) ([]Event, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service logs internal audit information.
//
// Audit is internal-only and callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event of type typ for tenantID. details, if non-nil, is stored as JSON metadata.
func (s *Service) Record(ctx context.Context, typ EventType, tenantID, externalAssistantID string, actor Actor, message string, details any) error {
	var meta string
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	return s.Append(ctx, Event{
		TenantID:            tenantID,
		Type:                typ,
		ActorUserID:         actor.UserID,
		ActorRole:           actor.Role,
		IPAddress:           actor.IP,
		ExternalAssistantID: externalAssistantID,
		Message:             message,
		Metadata:            meta,
	})
}

// List returns up to limit events for tenantID, newest first. limit is clamped
// to [1, 500]; zero means 50.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.repo.List(ctx, tenantID, limit)
}

type actorKey struct{}

// WithActor stores the acting user on ctx so services deep in the call chain can attribute events.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored on ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
