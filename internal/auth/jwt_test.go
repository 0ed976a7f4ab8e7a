package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"receptionist-platform/internal/config"

	"github.com/gin-gonic/gin"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "tenant-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyAcceptsTokenWithoutSessionTenant(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "", "super_admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(p.AccessToken, TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TenantID != "" || claims.PlatformRole != "super_admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "w", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	p, _ := m.IssuePair(now, "u", "w", "")
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(10*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestRequireAccessToken_InjectsIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, _ := m.IssuePair(time.Now(), "user-9", "tenant-9", "")

	var got Identity
	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		got = IdentityFrom(c.Request.Context())
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.UserID != "user-9" || got.SessionTenantID != "tenant-9" {
		t.Fatalf("unexpected identity: %+v", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestRefreshRotatesPairAndDropsPlatformRole(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "tenant-1", "super_admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(30 * time.Minute)
	np, err := m.Refresh(later, p.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := m.Verify(np.AccessToken, TokenTypeAccess, later)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TenantID != "tenant-1" || claims.PlatformRole != "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !np.ExpiresAt.Equal(later.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %s", np.ExpiresAt)
	}

	if _, err := m.Refresh(now, p.AccessToken, ""); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected ErrTokenType, got %v", err)
	}
	if _, err := m.Refresh(now.Add(2*time.Hour), p.RefreshToken, ""); err == nil {
		t.Fatalf("expected expired refresh token to fail")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}); err == nil {
		t.Fatalf("expected missing secret error")
	}
	if _, err := NewManager(config.AuthConfig{JWTSecret: "s"}); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestRequireAccessToken_Challenges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, _ := m.IssuePair(time.Now(), "user-9", "", "")

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) { c.Status(200) })

	cases := []struct {
		header string
		code   int
		auth   string
	}{
		{"bearer " + p.AccessToken, 200, ""},
		{"Basic dXNlcjpwYXNz", 401, `Bearer realm="api"`},
		{"Bearer " + p.RefreshToken, 401, `Bearer realm="api", error="invalid_token"`},
		{"Bearer ", 401, `Bearer realm="api"`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", tc.header)
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("%q: expected %d, got %d", tc.header, tc.code, w.Code)
		}
		if got := w.Header().Get("WWW-Authenticate"); got != tc.auth {
			t.Fatalf("%q: unexpected challenge %q", tc.header, got)
		}
	}
}
