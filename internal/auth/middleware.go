package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const bearerScheme = "bearer"

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not resolve tenants or permissions; that belongs to internal/tenancy.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token", `Bearer realm="api"`)
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			msg, challenge := "invalid token", `Bearer realm="api", error="invalid_token"`
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			logger.FromGin(c).Debug("access token rejected", "err", err)
			unauthorized(c, msg, challenge)
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), Identity{
			UserID:          claims.UserID,
			SessionTenantID: claims.TenantID,
			PlatformRole:    claims.PlatformRole,
		}))
		logger.Enrich(c, "user_id", claims.UserID)
		c.Set("user_id", claims.UserID)

		c.Next()
	}
}

// bearerToken accepts the scheme case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(c *gin.Context, msg, challenge string) {
	c.Header("WWW-Authenticate", challenge)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
