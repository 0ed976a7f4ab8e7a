package telephony

import (
	"context"
	"errors"
	"net/http"
	"time"

	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/calls"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/internal/tenancy"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/toolcalls"
	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Booker is the fan-out orchestrator as seen by the appointment webhook.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (booking.Result, error)
}

// ToolRunner executes assistant tool calls.
type ToolRunner interface {
	Execute(ctx context.Context, t tenants.Tenant, callID string, calls []toolcalls.Call) []toolcalls.Result
}

// WebhookHandler converts provider webhooks to internal types and delegates.
//
// No business logic here. Once the primary record is written the caller always
// gets a 2xx; enrichment failures surface only in logs and metrics.
type WebhookHandler struct {
	Resolver *tenancy.Resolver
	Ingestor *calls.Ingestor
	Booker   Booker
	Tools    ToolRunner
	Twilio   TwilioValidator

	// PublicBaseURL is the origin Twilio signs requests against.
	PublicBaseURL string

	Now func() time.Time
}

func (h WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

/* ===================== TWILIO ===================== */

func (h WebhookHandler) HandleTwilioStatus(c *gin.Context) {
	log := logger.FromGin(c)
	const provider = string(calls.ProviderTwilio)

	form, err := ParseTwilioStatus(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("twilio webhook parse failed", "err", err)
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if !h.Twilio.Valid(h.PublicBaseURL+c.Request.URL.RequestURI(), c.Request, c.GetHeader("X-Twilio-Signature")) {
		log.Warn("twilio signature rejected", "call_sid", form.CallSid)
		h.count(provider, "rejected")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	tc, ok := h.resolve(c, provider, form.Payload())
	if !ok {
		return
	}
	if _, _, err := h.Ingestor.Ingest(c.Request.Context(), form.ToUpdate(tc.TenantID())); err != nil {
		h.ingestFailed(c, provider, form.CallSid, err)
		return
	}

	h.count(provider, metrics.OutcomeOK)
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, emptyTwiML())
}

/* ===================== VOICE PLATFORM ===================== */

func (h WebhookHandler) HandleVapi(c *gin.Context) {
	log := logger.FromGin(c)
	const provider = string(calls.ProviderVapi)

	body, err := c.GetRawData()
	if err != nil {
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := parseVapi(body)
	if err != nil {
		log.Warn("vapi webhook parse failed", "err", err)
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	payload, _ := decodeFields(body)

	tc, ok := h.resolve(c, provider, payload)
	if !ok {
		return
	}
	log = logger.FromGin(c).With("message_type", msg.Type, "call_id", msg.Call.ID)

	switch msg.Type {
	case vapiToolCalls:
		results := h.Tools.Execute(c.Request.Context(), tc.Tenant, msg.Call.ID, msg.toolCalls())
		h.count(provider, metrics.OutcomeOK)
		c.JSON(http.StatusOK, gin.H{"results": results})

	case vapiStatusUpdate, vapiEndOfCallReport:
		if msg.Call.ID == "" {
			log.Warn("vapi message without call id")
			h.count(provider, "invalid")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call.id required"})
			return
		}
		ev, created, err := h.Ingestor.Ingest(c.Request.Context(), msg.ToUpdate(tc.TenantID()))
		if err != nil {
			h.ingestFailed(c, provider, msg.Call.ID, err)
			return
		}
		log.Info("call event ingested", "created", created, "status", ev.Status)
		h.count(provider, metrics.OutcomeOK)
		c.JSON(http.StatusOK, gin.H{"received": true})

	default:
		// Other server messages (transcript, speech-update, ...) are not stored.
		h.count(provider, metrics.OutcomeSkipped)
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

/* ===================== AUTOMATION ===================== */

// HandleCallWebhook creates or updates a call from a form-automation tool.
func (h WebhookHandler) HandleCallWebhook(c *gin.Context) {
	const provider = string(calls.ProviderAutomation)

	f, ok := h.bindFields(c, provider)
	if !ok {
		return
	}
	if f.callID() == "" {
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	tc, ok := h.resolve(c, provider, f)
	if !ok {
		return
	}

	ev, created, err := h.Ingestor.Ingest(c.Request.Context(), f.ToUpdate(tc.TenantID()))
	if err != nil {
		h.ingestFailed(c, provider, f.callID(), err)
		return
	}
	h.count(provider, metrics.OutcomeOK)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "id": ev.ID, "call_id": ev.ProviderCallID, "status": ev.Status, "created": created})
}

// HandleCallPatch applies a partial update to a call matched by its call id.
func (h WebhookHandler) HandleCallPatch(c *gin.Context) {
	const provider = string(calls.ProviderAutomation)

	f, ok := h.bindFields(c, provider)
	if !ok {
		return
	}
	callID := c.Param("call_id")

	// A tenant named in the body scopes the lookup; otherwise the call id alone.
	tenantID := ""
	if explicit := f.str("tenant_id", "tenantId", "business_id", "businessId"); explicit != "" {
		tc, ok := h.resolve(c, provider, f)
		if !ok {
			return
		}
		tenantID = tc.TenantID()
	}

	u := f.ToUpdate(tenantID)
	u.ProviderCallID = callID
	ev, err := h.Ingestor.Patch(c.Request.Context(), callID, u)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		h.count(provider, "not_found")
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case errors.Is(err, calls.ErrInvalidArgument):
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	case errors.Is(err, calls.ErrAmbiguousCallID):
		h.count(provider, "ambiguous")
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call id matches several businesses; include tenant_id"})
		return
	case err != nil:
		h.ingestFailed(c, provider, callID, err)
		return
	}
	logger.Enrich(c, "tenant_id", ev.TenantID)
	h.count(provider, metrics.OutcomeOK)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": ev.ID, "call_id": ev.ProviderCallID, "status": ev.Status})
}

// HandleAppointment books from an appointment-request webhook. The response
// reflects the appointment write only.
func (h WebhookHandler) HandleAppointment(c *gin.Context) {
	const provider = "appointment"
	log := logger.FromGin(c)

	tc, err := h.Resolver.AuthorizeTenantID(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.rejectTenant(c, provider, err)
		return
	}
	tenancy.Attach(c, tc)

	f, ok := h.bindFields(c, provider)
	if !ok {
		return
	}

	res, err := h.Booker.Book(c.Request.Context(), f.ToBookingRequest(tc.TenantID()))
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		h.count(provider, "invalid")
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"success": false, "errors": ve.Errors})
		return
	case err != nil:
		log.Error("appointment booking failed", "err", err)
		h.count(provider, metrics.OutcomeError)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "booking failed"})
		return
	}
	h.count(provider, metrics.OutcomeOK)
	c.JSON(http.StatusOK, res)
}

/* ===================== DIRECT TOOLS ===================== */

func (h WebhookHandler) HandleCurrentTime(c *gin.Context) {
	tc, err := h.Resolver.AuthorizeTenantID(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.rejectTenant(c, "tool", err)
		return
	}
	c.JSON(http.StatusOK, toolcalls.CurrentTime(tc.Tenant, h.now()))
}

func (h WebhookHandler) HandleBusinessInfo(c *gin.Context) {
	tc, err := h.Resolver.AuthorizeTenantID(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		h.rejectTenant(c, "tool", err)
		return
	}
	c.JSON(http.StatusOK, toolcalls.BusinessInfoFor(tc.Tenant))
}

/* ===================== HELPERS ===================== */

func (h WebhookHandler) bindFields(c *gin.Context, provider string) (fields, bool) {
	body, err := c.GetRawData()
	if err == nil {
		var f fields
		if f, err = decodeFields(body); err == nil {
			return f, true
		}
	}
	logger.FromGin(c).Warn("webhook body rejected", "provider", provider, "err", err)
	h.count(provider, "invalid")
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
	return nil, false
}

func (h WebhookHandler) resolve(c *gin.Context, provider string, payload map[string]any) (tenancy.Context, bool) {
	tc, err := h.Resolver.AuthorizeWebhook(c.Request.Context(), payload)
	if err != nil {
		h.rejectTenant(c, provider, err)
		return tenancy.Context{}, false
	}
	tenancy.Attach(c, tc)
	return tc, true
}

func (h WebhookHandler) rejectTenant(c *gin.Context, provider string, err error) {
	status, msg := tenancy.StatusFor(err)
	logger.FromGin(c).Warn("webhook tenant resolution failed", "provider", provider, "err", err)
	h.count(provider, "rejected")
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ingestFailed answers 500 so the provider retries: the primary record was not written.
func (h WebhookHandler) ingestFailed(c *gin.Context, provider, callID string, err error) {
	logger.FromGin(c).Error("call ingestion failed", "provider", provider, "call_id", callID, "err", err)
	h.count(provider, metrics.OutcomeError)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
}

func (h WebhookHandler) count(provider, outcome string) {
	metrics.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

// Register mounts the webhook and direct-tool routes.
func (h WebhookHandler) Register(r gin.IRouter, vapiSecret, webhookSecret string) {
	r.POST("/webhooks/twilio/status", h.HandleTwilioStatus)
	r.POST("/webhooks/vapi", RequireSecret(string(calls.ProviderVapi), "X-Vapi-Secret", vapiSecret), h.HandleVapi)

	automation := RequireSecret(string(calls.ProviderAutomation), "X-Webhook-Secret", webhookSecret)
	r.POST("/webhooks/calls", automation, h.HandleCallWebhook)
	r.PATCH("/webhooks/calls/:call_id", automation, h.HandleCallPatch)
	r.POST("/webhooks/appointments/:tenant_id", RequireSecret("appointment", "X-Webhook-Secret", webhookSecret), h.HandleAppointment)

	r.GET("/tools/:tenant_id/current-time", h.HandleCurrentTime)
	r.GET("/tools/:tenant_id/business-info", h.HandleBusinessInfo)
}
