package telephony

import (
	"crypto/subtle"
	"net/http"
	"time"

	"receptionist-platform/internal/metrics"
	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
)

// RateLimit limits webhook deliveries per client IP. requests <= 0 disables it.
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	if requests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limit := httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.From(r.Context()).Warn("webhook rate limit exceeded",
				"path", r.URL.Path,
				"method", r.Method,
				"user_agent", r.UserAgent(),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
		}),
	)

	return func(c *gin.Context) {
		passed := false
		limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// RequireSecret rejects requests whose header does not match secret. An empty
// secret disables the check.
func RequireSecret(provider, header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if !secretEqual(c.GetHeader(header), secret) {
			logger.FromGin(c).Warn("webhook secret mismatch", "provider", provider, "header", header)
			metrics.WebhookEvents.WithLabelValues(provider, "rejected").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
