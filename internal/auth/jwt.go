package auth

import (
	"errors"
	"fmt"
	"time"

	"receptionist-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew is tolerated on exp and iat.
const clockSkew = 30 * time.Second

var (
	ErrTokenType = errors.New("auth: token_type mismatch")
	ErrNoSubject = errors.New("auth: user_id missing")
)

// Manager signs and verifies the HS256 session tokens used by the management API.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive (access=%s refresh=%s)", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

/* ===================== ISSUE ===================== */

// IssuePair issues an access/refresh pair. tenantID is the session tenant and may be empty
// for users that always address tenants explicitly.
func (m *Manager) IssuePair(now time.Time, userID, tenantID, platformRole string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, ErrNoSubject
	}
	access, err := m.sign(now, Claims{UserID: userID, TenantID: tenantID, PlatformRole: platformRole, TokenType: TokenTypeAccess}, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	// Refresh tokens never carry the platform role.
	refresh, err := m.sign(now, Claims{UserID: userID, TenantID: tenantID, TokenType: TokenTypeRefresh}, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: now.Add(m.accessTTL)}, nil
}

// Refresh exchanges a valid refresh token for a new pair bound to the same user
// and session tenant. platformRole is looked up again by the caller; it is not
// carried over from the old access token.
func (m *Manager) Refresh(now time.Time, refreshToken, platformRole string) (TokenPair, error) {
	claims, err := m.Verify(refreshToken, TokenTypeRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}
	return m.IssuePair(now, claims.UserID, claims.TenantID, platformRole)
}

func (m *Manager) sign(now time.Time, c Claims, ttl time.Duration) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Audience:  audienceOrNil(m.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

/* ===================== VERIFY ===================== */

// Verify checks signature, time window, issuer and audience against now, then
// the token type. Time checks run against the supplied clock, not the wall clock.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	switch {
	case claims.TokenType != expected:
		return Claims{}, ErrTokenType
	case claims.UserID == "":
		return Claims{}, ErrNoSubject
	case expected == TokenTypeRefresh && claims.PlatformRole != "":
		return Claims{}, errors.New("auth: refresh token must not carry platform_role")
	}
	return claims, nil
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
