package calendar

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidState = errors.New("calendar: invalid oauth state")

const stateAudience = "calendar-oauth"

// stateClaims is the OAuth state payload: which tenant started the flow and who.
type stateClaims struct {
	TenantID string `json:"tid"`
	UserID   string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

func (p *Provider) signState(now time.Time, tenantID, userID string) (string, error) {
	claims := stateClaims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.stateSecret)
}

// ParseState verifies a state produced by AuthURL and returns the tenant and user it names.
func (p *Provider) ParseState(state string) (tenantID, userID string, err error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock),
	)
	var c stateClaims
	tok, err := parser.ParseWithClaims(state, &c, func(*jwt.Token) (any, error) { return p.stateSecret, nil })
	if err != nil || !tok.Valid || c.TenantID == "" {
		return "", "", ErrInvalidState
	}
	return c.TenantID, c.UserID, nil
}
