package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/audit"
	"receptionist-platform/internal/auth"
	"receptionist-platform/internal/calendar"
	"receptionist-platform/internal/provisioning"
	"receptionist-platform/internal/reporting"
	"receptionist-platform/internal/tenancy"
	"receptionist-platform/internal/vapi"
	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// AssistantService is the assistant lifecycle the tenant API drives.
type AssistantService interface {
	Current(ctx context.Context, tenantID string) (assistant.Assistant, error)
	Preview(ctx context.Context, tenantID string) (assistant.Config, error)
	Provision(ctx context.Context, tenantID string) (assistant.Assistant, error)
	Update(ctx context.Context, tenantID string, p provisioning.Patch) (assistant.Assistant, error)
	Deprovision(ctx context.Context, tenantID string) error
	UpdateRequiredFields(ctx context.Context, tenantID, toolName string, fields []assistant.FieldSelection) (assistant.Assistant, error)
	ReconcileTools(ctx context.Context, tenantID string) (provisioning.ReconcileResult, error)
}

// CalendarService is the per-tenant calendar connection flow.
type CalendarService interface {
	AuthURL(tenantID, userID string) (string, error)
	Exchange(ctx context.Context, state, code string) (string, error)
	Status(ctx context.Context, tenantID string) (calendar.Status, error)
	Disconnect(ctx context.Context, tenantID string) error
}

// PlatformProbe checks the voice platform is reachable.
type PlatformProbe interface {
	Configured() bool
	ListAssistants(ctx context.Context, limit int) ([]vapi.Assistant, error)
}

type Handlers struct {
	Auth       *auth.Manager
	Assistants AssistantService
	Calendar   CalendarService
	Reporting  *reporting.Service
	Platform   PlatformProbe
	Audit      *audit.Service

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID       string `json:"user_id"`
	TenantID     string `json:"tenant_id"`
	PlatformRole string `json:"platform_role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a development-only endpoint and is not mounted in production.
// Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.TenantID, req.PlatformRole)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a token pair. The platform role is dropped; staff log in again.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(h.now(), req.RefreshToken, "")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- Assistant ---

func (h Handlers) GetAssistant(c *gin.Context) {
	tc := mustTenant(c)
	a, err := h.Assistants.Current(c.Request.Context(), tc.TenantID())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// PreviewAssistant returns the config a push would send now. It never calls the platform.
func (h Handlers) PreviewAssistant(c *gin.Context) {
	tc := mustTenant(c)
	cfg, err := h.Assistants.Preview(c.Request.Context(), tc.TenantID())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h Handlers) ProvisionAssistant(c *gin.Context) {
	tc := mustTenant(c)
	a, err := h.Assistants.Provision(c.Request.Context(), tc.TenantID())
	if err != nil {
		writeError(c, err)
		return
	}
	logger.Enrich(c, "external_assistant_id", a.ExternalID).Info("assistant provisioned")
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) PatchAssistant(c *gin.Context) {
	tc := mustTenant(c)
	var p provisioning.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Assistants.Update(c.Request.Context(), tc.TenantID(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) DeleteAssistant(c *gin.Context) {
	tc := mustTenant(c)
	err := h.Assistants.Deprovision(c.Request.Context(), tc.TenantID())
	if errors.Is(err, provisioning.ErrNotProvisioned) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "assistant not provisioned"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type validateToolsRequest struct {
	Tools []map[string]any `json:"tools"`
}

// ValidateTools checks tool definitions and reports every violation found.
func (h Handlers) ValidateTools(c *gin.Context) {
	var req validateToolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res := assistant.ValidateToolParameters(req.Tools)
	if !res.Valid {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type requiredFieldsRequest struct {
	Fields []assistant.FieldSelection `json:"fields"`
}

func (h Handlers) PutRequiredFields(c *gin.Context) {
	tc := mustTenant(c)
	var req requiredFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := h.Assistants.UpdateRequiredFields(c.Request.Context(), tc.TenantID(), c.Param("tool_name"), req.Fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) ReconcileTools(c *gin.Context) {
	tc := mustTenant(c)
	res, err := h.Assistants.ReconcileTools(c.Request.Context(), tc.TenantID())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Calls ---

const defaultSummaryWindow = 30 * 24 * time.Hour

// CallsSummary reports call counts for ?from&to (RFC 3339 or YYYY-MM-DD).
// Without a range the last 30 days are used.
func (h Handlers) CallsSummary(c *gin.Context) {
	tc := mustTenant(c)
	loc := tc.Tenant.Location()

	to := h.now()
	from := to.Add(-defaultSummaryWindow)
	if v := c.Query("from"); v != "" {
		t, ok := parseBound(v, loc)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, ok := parseBound(v, loc)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		if len(v) == len(time.DateOnly) {
			// A bare date includes the whole day.
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}

	req := reporting.CallsSummaryRequest{TenantID: tc.TenantID(), Range: reporting.TimeRange{From: from, To: to}}
	summary, err := h.Reporting.CallsSummary(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	conv, err := h.Reporting.ConversionMetrics(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary, "conversion": conv})
}

func parseBound(v string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// --- Calendar ---

func (h Handlers) CalendarAuthURL(c *gin.Context) {
	tc := mustTenant(c)
	u, err := h.Calendar.AuthURL(tc.TenantID(), tc.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": u})
}

func (h Handlers) CalendarStatus(c *gin.Context) {
	tc := mustTenant(c)
	st, err := h.Calendar.Status(c.Request.Context(), tc.TenantID())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) CalendarDisconnect(c *gin.Context) {
	tc := mustTenant(c)
	if err := h.Calendar.Disconnect(c.Request.Context(), tc.TenantID()); err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventCalendarDisconnected, tc.TenantID(), "calendar disconnected")
	c.Status(http.StatusNoContent)
}

// OAuthCallback completes the calendar consent flow. The tenant comes from the signed state,
// so this route is public.
func (h Handlers) OAuthCallback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "consent denied", "reason": e})
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "state and code required"})
		return
	}
	tenantID, err := h.Calendar.Exchange(c.Request.Context(), state, code)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.EventCalendarConnected, tenantID, "calendar connected")
	c.JSON(http.StatusOK, gin.H{"connected": true, "tenant_id": tenantID})
}

// --- Platform ---

// PlatformHealth lists one assistant on the voice platform to prove the key works.
// AuditLog lists the tenant's audit trail, newest first.
func (h Handlers) AuditLog(c *gin.Context) {
	tc := mustTenant(c)
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	events, err := h.Audit.List(c.Request.Context(), tc.TenantID(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h Handlers) PlatformHealth(c *gin.Context) {
	if h.Platform == nil || !h.Platform.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "configured": false})
		return
	}
	if _, err := h.Platform.ListAssistants(c.Request.Context(), 1); err != nil {
		logger.FromGin(c).Warn("platform health check failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"status": "unreachable", "configured": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "configured": true})
}

// --- helpers ---

// mustTenant returns the context attached by tenancy.Middleware. Routes are never
// mounted without it.
func mustTenant(c *gin.Context) tenancy.Context {
	tc, ok := tenancy.FromGin(c)
	if !ok {
		panic("httpapi: tenant context missing; route mounted without tenancy.Middleware")
	}
	return tc
}

func (h Handlers) record(c *gin.Context, typ audit.EventType, tenantID, msg string) {
	if h.Audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.Audit.Record(ctx, typ, tenantID, "", audit.ActorFrom(ctx), msg, nil); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err, "event", typ)
	}
}

// WithActor attributes audit events in the request to the resolved caller.
func WithActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := audit.Actor{IP: c.ClientIP()}
		if tc, ok := tenancy.FromGin(c); ok {
			a.UserID, a.Role = tc.UserID, tc.Role
		} else {
			a.UserID = auth.IdentityFrom(c.Request.Context()).UserID
		}
		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), a))
		c.Next()
	}
}
