package tenancy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"receptionist-platform/internal/auth"
	"receptionist-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

func router(t *testing.T, userID string, required ...rbac.Permission) (*gin.Engine, *Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var got Context
	r := gin.New()
	identity := func(c *gin.Context) {
		if userID != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), auth.Identity{UserID: userID}))
		}
		c.Next()
	}
	handler := func(c *gin.Context) {
		got, _ = FromGin(c)
		// Body must still be readable after the middleware peeked at it.
		var body map[string]any
		if c.Request.Method == http.MethodPost {
			if err := c.ShouldBindBodyWithJSON(&body); err != nil {
				c.Status(http.StatusTeapot)
				return
			}
		}
		c.Status(http.StatusOK)
	}
	mw := Middleware(NewResolver(seed(t)), required...)
	r.GET("/v1/tenants/:tenant_id/x", identity, mw, rbac.RequirePermission(required...), handler)
	r.POST("/v1/x", identity, mw, handler)
	return r, &got
}

func TestMiddleware_PathTenant(t *testing.T) {
	r, got := router(t, "owner", rbac.PermAssistantRead)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tenants/t-active/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.TenantID() != "t-active" || got.Role != rbac.RoleOwner {
		t.Fatalf("unexpected context: %+v", got)
	}
}

func TestMiddleware_BodyTenant(t *testing.T) {
	r, got := router(t, "owner")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/x", strings.NewReader(`{"tenant_id":"t-active","role":"owner"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got.TenantID() != "t-active" {
		t.Fatalf("expected tenant from body, got %+v", got)
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	cases := []struct {
		user string
		path string
		want int
	}{
		{"", "/v1/tenants/t-active/x", http.StatusUnauthorized},
		{"stranger", "/v1/tenants/t-active/x", http.StatusForbidden},
		{"viewer", "/v1/tenants/t-active/x", http.StatusForbidden},
	}
	for _, tc := range cases {
		r, _ := router(t, tc.user, rbac.PermAssistantWrite)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("user %q: expected %d, got %d", tc.user, tc.want, w.Code)
		}
	}

	r, _ := router(t, "owner")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/x", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no tenant can be resolved, got %d", w.Code)
	}
}
