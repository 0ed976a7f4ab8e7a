package httpapi

import (
	"receptionist-platform/internal/rbac"
	"receptionist-platform/internal/tenancy"

	"github.com/gin-gonic/gin"
)

// Register mounts the tenant API on v1. authMW must verify the bearer token;
// every tenant route then runs the resolver with the route's permissions.
func (h Handlers) Register(v1 *gin.RouterGroup, authMW gin.HandlerFunc, resolver *tenancy.Resolver) {
	v1.Use(authMW)

	tenant := func(perms ...rbac.Permission) []gin.HandlerFunc {
		return []gin.HandlerFunc{tenancy.Middleware(resolver, perms...), WithActor()}
	}
	with := func(mw []gin.HandlerFunc, fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(mw, fn)
	}

	t := v1.Group("/tenants/:tenant_id")
	{
		t.GET("/assistant", with(tenant(rbac.PermAssistantRead), h.GetAssistant)...)
		t.GET("/assistant/preview", with(tenant(rbac.PermAssistantRead), h.PreviewAssistant)...)
		t.POST("/assistant/provision", with(tenant(rbac.PermAssistantProvision), h.ProvisionAssistant)...)
		t.PATCH("/assistant", with(tenant(rbac.PermAssistantWrite), h.PatchAssistant)...)
		t.DELETE("/assistant", with(tenant(rbac.PermAssistantProvision), h.DeleteAssistant)...)
		t.POST("/assistant/tools/validate", with(tenant(rbac.PermAssistantWrite), h.ValidateTools)...)
		t.PUT("/assistant/tools/:tool_name/required-fields", with(tenant(rbac.PermAssistantWrite), h.PutRequiredFields)...)
		t.POST("/assistant/tools/reconcile", with(tenant(rbac.PermAssistantProvision), h.ReconcileTools)...)

		t.GET("/calls/summary", with(tenant(rbac.PermCallsRead), h.CallsSummary)...)

		t.GET("/calendar/auth-url", with(tenant(rbac.PermCalendarManage), h.CalendarAuthURL)...)
		t.GET("/calendar/status", with(tenant(rbac.PermCalendarManage), h.CalendarStatus)...)
		t.DELETE("/calendar", with(tenant(rbac.PermCalendarManage), h.CalendarDisconnect)...)

		t.GET("/audit", with(tenant(rbac.PermAssistantProvision), h.AuditLog)...)
	}

	v1.GET("/platform/health", h.PlatformHealth)
}

// RegisterPublic mounts routes that carry their own proof of origin.
func (h Handlers) RegisterPublic(r gin.IRouter) {
	r.GET("/oauth/google/callback", h.OAuthCallback)
}
