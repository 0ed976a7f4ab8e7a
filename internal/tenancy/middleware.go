package tenancy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"receptionist-platform/internal/auth"
	"receptionist-platform/internal/rbac"
	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	tenantParam   = "tenant_id"
	ginContextKey = "tenant_context"
)

type ctxKey struct{}

func WithContext(ctx context.Context, tc Context) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, tc)
	return rbac.WithPermissions(ctx, tc.Permissions)
}

func From(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// FromGin returns the resolved context stored by Middleware.
func FromGin(c *gin.Context) (Context, bool) {
	if v, ok := c.Get(ginContextKey); ok {
		if tc, ok := v.(Context); ok {
			return tc, true
		}
	}
	return From(c.Request.Context())
}

type bodyTenant struct {
	TenantID  string `json:"tenant_id"`
	TenantID2 string `json:"tenantId"`
}

// Middleware resolves the tenant context for an authenticated route.
// It must run after auth.RequireAccessToken. required are the route's permissions.
func Middleware(r *Resolver, required ...rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := auth.IdentityFrom(c.Request.Context())
		req := Request{
			UserID:          id.UserID,
			PlatformRole:    id.PlatformRole,
			SessionTenantID: id.SessionTenantID,
			PathTenantID:    c.Param(tenantParam),
			QueryTenantID:   c.Query(tenantParam),
			Required:        required,
		}
		if req.PathTenantID == "" && req.QueryTenantID == "" && hasJSONBody(c) {
			// ShouldBindBodyWith caches the body so handlers can bind it again.
			var b bodyTenant
			if err := c.ShouldBindBodyWith(&b, binding.JSON); err == nil {
				req.BodyTenantID = b.TenantID
				if req.BodyTenantID == "" {
					req.BodyTenantID = b.TenantID2
				}
			}
		}

		tc, err := r.Authorize(c.Request.Context(), req)
		if err != nil {
			status, msg := StatusFor(err)
			if status >= http.StatusInternalServerError {
				logger.FromGin(c).Error("tenant resolution failed", "err", err)
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		attach(c, tc)
		c.Next()
	}
}

func attach(c *gin.Context, tc Context) {
	c.Set(ginContextKey, tc)
	c.Request = c.Request.WithContext(WithContext(c.Request.Context(), tc))
	logger.Enrich(c, "tenant_id", tc.TenantID())
}

// Attach stores a context resolved outside Middleware, e.g. by a webhook handler.
func Attach(c *gin.Context, tc Context) { attach(c, tc) }

// StatusFor maps resolver errors to HTTP status and a client-safe message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, ErrTenantRequired):
		return http.StatusBadRequest, "tenant_id required"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound, "tenant not found"
	case errors.Is(err, ErrTenantInactive):
		return http.StatusForbidden, "tenant inactive"
	default:
		return http.StatusInternalServerError, "tenant resolution failed"
	}
}

func hasJSONBody(c *gin.Context) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return false
	}
	return strings.HasPrefix(c.ContentType(), binding.MIMEJSON)
}
