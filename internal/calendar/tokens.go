package calendar

import (
	"context"
	"sync"

	"receptionist-platform/internal/tenants"
	"receptionist-platform/pkg/logger"

	"golang.org/x/oauth2"
)

// persistingTokenSource writes refreshed tokens back to the tenant record so a
// refresh is not repeated on every request.
type persistingTokenSource struct {
	ctx      context.Context
	base     oauth2.TokenSource
	tenantID string
	creds    tenants.CalendarCredentials
	repo     tenants.Repository

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	updated := s.creds
	updated.AccessToken = tok.AccessToken
	updated.TokenType = tok.TokenType
	updated.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if err := s.repo.UpdateCalendar(s.ctx, s.tenantID, &updated); err != nil {
		logger.From(s.ctx).Warn("persist refreshed calendar token failed", "tenant_id", s.tenantID, "err", err)
	}
	s.creds = updated
	return tok, nil
}

func tokenFrom(c tenants.CalendarCredentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}
