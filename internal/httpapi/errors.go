package httpapi

import (
	"errors"
	"net/http"

	"receptionist-platform/internal/assistant"
	"receptionist-platform/internal/calendar"
	"receptionist-platform/internal/provisioning"
	"receptionist-platform/internal/reporting"
	"receptionist-platform/internal/tenancy"
	"receptionist-platform/internal/tenants"
	"receptionist-platform/internal/vapi"
	"receptionist-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors to status codes. Platform failures are 502,
// a missing platform key is 503, and anything unknown is logged and returned as 500.
func writeError(c *gin.Context, err error) {
	var (
		verr *assistant.ValidationError
		serr *provisioning.StepError
		aerr *vapi.APIError
	)
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "errors": verr.Errors})

	case errors.Is(err, provisioning.ErrProvisioningInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "another operation is running for this tenant"})
	case errors.Is(err, provisioning.ErrAlreadyProvisioned):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "assistant already provisioned"})
	case errors.Is(err, provisioning.ErrNotProvisioned):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "assistant not provisioned"})

	case errors.Is(err, vapi.ErrUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "voice platform not configured"})
	case errors.As(err, &serr):
		logger.FromGin(c).Error("platform step failed", "step", serr.Step, "err", serr.Err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "voice platform request failed", "step": serr.Step})
	case errors.As(err, &aerr):
		logger.FromGin(c).Error("platform request failed", "err", aerr)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "voice platform request failed"})

	case errors.Is(err, calendar.ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "calendar integration not configured"})
	case errors.Is(err, calendar.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid or expired state"})
	case errors.Is(err, calendar.ErrNotConnected):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "calendar not connected"})

	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
	case errors.Is(err, tenants.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})

	case errors.Is(err, tenancy.ErrUnauthenticated),
		errors.Is(err, tenancy.ErrTenantRequired),
		errors.Is(err, tenancy.ErrForbidden),
		errors.Is(err, tenancy.ErrTenantNotFound),
		errors.Is(err, tenancy.ErrTenantInactive):
		status, msg := tenancy.StatusFor(err)
		c.AbortWithStatusJSON(status, gin.H{"error": msg})

	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
