package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxSessionTenantID
	ctxPlatformRole
)

// Identity is the authenticated caller as asserted by a verified token.
type Identity struct {
	UserID          string
	SessionTenantID string
	PlatformRole    string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxSessionTenantID, id.SessionTenantID)
	ctx = context.WithValue(ctx, ctxPlatformRole, id.PlatformRole)
	return ctx
}

// IdentityFrom returns whatever identity is in context; UserID is empty if none.
func IdentityFrom(ctx context.Context) Identity {
	var id Identity
	id.UserID, _ = ctx.Value(ctxUserID).(string)
	id.SessionTenantID, _ = ctx.Value(ctxSessionTenantID).(string)
	id.PlatformRole, _ = ctx.Value(ctxPlatformRole).(string)
	return id
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}
