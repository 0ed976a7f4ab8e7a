package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
//
// TenantID is the tenant bound to the caller's session and is only a fallback;
// requests may target another tenant the caller is a member of.
// Tenant roles are never carried in the token. They are read from the membership
// on every request by the tenant resolver.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	TokenType TokenType `json:"token_type"`

	// PlatformRole is set only for platform staff (super_admin).
	PlatformRole string `json:"platform_role,omitempty"`
}
