package rbac

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

// WithPermissions stores the computed permission set on the request context.
// Only the tenant resolver should call this; client input never reaches it.
func WithPermissions(ctx context.Context, set PermissionSet) context.Context {
	return context.WithValue(ctx, ctxKey{}, set)
}

func PermissionsFrom(ctx context.Context) PermissionSet {
	if v, ok := ctx.Value(ctxKey{}).(PermissionSet); ok {
		return v
	}
	return nil
}

// RequirePermission allows the request if the resolved permission set contains every
// required permission. It must run after the tenant resolver has populated the context.
func RequirePermission(required ...Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		set := PermissionsFrom(c.Request.Context())
		if set == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant context required"})
			return
		}
		if !set.HasAll(required...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
