// Package statusapi implements the delivery status read surface of
// spec.md §4.5: per-delivery attempt history and per-subscription delivery
// aggregates, both served from the append-only attempt log.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/auditlog"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"go.uber.org/zap"
)

const defaultDeliveriesLimit = 20

// Log is the subset of internal/auditlog.Log the status handlers read from.
type Log interface {
	DeliveryStatus(ctx context.Context, deliveryID uuid.UUID) (*models.DeliveryStatusResponse, error)
	SubscriptionDeliveries(ctx context.Context, subscriptionID uuid.UUID, limit int) (*models.SubscriptionDeliveriesResponse, error)
}

// Handlers serves the status read endpoints.
type Handlers struct {
	log    Log
	logger *zap.Logger
}

// NewHandlers creates the status handlers over an attempt log.
func NewHandlers(log Log, logger *zap.Logger) *Handlers {
	return &Handlers{log: log, logger: logger}
}

// DeliveryStatus handles GET /status/deliveries/:delivery_id.
func (h *Handlers) DeliveryStatus(c *gin.Context) {
	deliveryID, err := uuid.Parse(c.Param("delivery_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
		return
	}

	resp, err := h.log.DeliveryStatus(c.Request.Context(), deliveryID)
	if errors.Is(err, auditlog.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "delivery not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load delivery status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load delivery status"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubscriptionDeliveries handles
// GET /status/subscriptions/:id/deliveries?limit=N.
func (h *Handlers) SubscriptionDeliveries(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	limit := defaultDeliveriesLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.log.SubscriptionDeliveries(c.Request.Context(), subscriptionID, limit)
	if err != nil {
		h.logger.Error("failed to load subscription deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription deliveries"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
