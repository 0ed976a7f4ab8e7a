package main

import (
	"database/sql"
	"net/http"
	"time"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/audit"
	"receptionist-platform/internal/auth"
	"receptionist-platform/internal/booking"
	"receptionist-platform/internal/calendar"
	"receptionist-platform/internal/calls"
	"receptionist-platform/internal/config"
	"receptionist-platform/internal/httpapi"
	"receptionist-platform/internal/metrics"
	"receptionist-platform/internal/notification"
	"receptionist-platform/internal/provisioning"
	"receptionist-platform/internal/reporting"
	"receptionist-platform/internal/telephony"
	"receptionist-platform/internal/tenancy"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/toolcalls"
	"receptionist-platform/internal/vapi"
	"receptionist-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// deps are the process-wide connections. rdb may be nil.
type deps struct {
	db   *sql.DB
	rdb  *redis.Client
	auth *auth.Manager
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d deps) {
	// Repositories
	tenantRepo := tenants.NewPostgresRepo(d.db)
	assistantRepo := assistant.NewPostgresRepo(d.db)
	callRepo := calls.NewPostgresRepo(d.db)
	bookingRepo := booking.NewPostgresRepo(d.db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(d.db))

	var locker provisioning.Locker = provisioning.NewMemoryLocker()
	if d.rdb != nil {
		locker = provisioning.NewRedisLocker(d.rdb)
	}

	platform := vapi.New(cfg.Vapi)
	synchronizer := provisioning.New(platform, assistantRepo, tenantRepo, locker, auditSvc, provisioning.Options{
		PublicBaseURL: cfg.App.PublicBaseURL,
		WebhookSecret: cfg.Vapi.WebhookSecret,
	})

	// The OAuth state is signed with the JWT secret; it never leaves this service.
	cal := calendar.New(cfg.Google, cfg.Auth.JWTSecret, tenantRepo)

	// Enrichments stay nil (skipped) unless configured. Assigning an unconfigured
	// pointer would make the interface non-nil.
	var (
		calBooker booking.CalendarBooker
		busy      booking.BusyChecker
		mailer    booking.Mailer
	)
	if cal.Configured() {
		calBooker, busy = cal, cal
	}
	if email := notification.NewEmailService(cfg.SMTP); email.Configured() {
		mailer = email
	}
	orchestrator := booking.New(bookingRepo, tenantRepo, calBooker, busy, mailer)

	resolver := tenancy.NewResolver(tenantRepo)

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Provider webhooks and direct tools. Each checks its own proof of origin.
	wh := telephony.WebhookHandler{
		Resolver:      resolver,
		Ingestor:      calls.NewIngestor(callRepo),
		Booker:        orchestrator,
		Tools:         toolcalls.New(assistantRepo, orchestrator),
		Twilio:        telephony.NewTwilioValidator(cfg.Twilio.AuthToken),
		PublicBaseURL: cfg.App.PublicBaseURL,
	}
	hooks := r.Group("")
	hooks.Use(telephony.RateLimit(cfg.Webhooks.RateLimit, cfg.Webhooks.RateLimitWindow))
	wh.Register(hooks, cfg.Vapi.WebhookSecret, cfg.Webhooks.Secret)

	h := httpapi.Handlers{
		Auth:       d.auth,
		Assistants: synchronizer,
		Calendar:   cal,
		Reporting:  reporting.NewService(callRepo, bookingRepo),
		Platform:   platform,
		Audit:      auditSvc,
	}
	h.RegisterPublic(r)

	// Token issuance.
	// NOTE: Development only; real credential validation lives in the identity provider.
	if !cfg.IsProduction() {
		r.POST("/auth/login", h.Login)
		r.POST("/auth/refresh", h.Refresh)
	}

	// protected API group
	h.Register(r.Group("/v1"), auth.RequireAccessToken(d.auth), resolver)
}
