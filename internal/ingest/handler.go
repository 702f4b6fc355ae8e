// Package ingest implements the ingestion gate (spec.md §4.3): authenticate
// an inbound event, mint a delivery id, and enqueue a task without ever
// performing synchronous delivery.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/observability"
	"github.com/relayhook/webhook-delivery-service/internal/signing"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
	"go.uber.org/zap"
)

const signatureHeader = "X-Hub-Signature-256"
const eventTypeHeader = "X-Webhook-Event"

// SubscriptionGetter resolves a subscription by id, cache-first.
type SubscriptionGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

// Enqueuer submits a task to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task models.DeliveryTask, readyAt time.Time) (uuid.UUID, error)
}

// Handler serves POST /ingest/:subscription_id.
type Handler struct {
	resolver SubscriptionGetter
	queue    Enqueuer
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewHandler creates an ingestion handler. metrics may be nil.
func NewHandler(resolver SubscriptionGetter, q Enqueuer, logger *zap.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{resolver: resolver, queue: q, logger: logger, metrics: metrics}
}

func (h *Handler) countOutcome(outcome string) {
	if h.metrics != nil {
		h.metrics.IngestTotal.WithLabelValues(outcome).Inc()
	}
}

// Ingest implements the procedure of spec.md §4.3 steps 1-6.
func (h *Handler) Ingest(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("subscription_id"))
	if err != nil {
		h.countOutcome("not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.countOutcome("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}

	sub, err := h.resolver.Get(c.Request.Context(), subscriptionID)
	if errors.Is(err, subscription.ErrNotFound) {
		h.countOutcome("not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load subscription", zap.Error(err))
		h.countOutcome("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	canonical, err := signing.Canonicalize(payload)
	if err != nil {
		h.countOutcome("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}

	if sub.SecretKey != nil && *sub.SecretKey != "" {
		provided := c.GetHeader(signatureHeader)
		if provided == "" {
			h.countOutcome("unauthorized")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature required"})
			return
		}
		if !signing.Verify(canonical, provided, *sub.SecretKey) {
			h.countOutcome("unauthorized")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	deliveryID := uuid.New()
	task := models.DeliveryTask{
		DeliveryID:     deliveryID,
		SubscriptionID: subscriptionID,
		Payload:        canonical,
		AttemptNumber:  1,
	}
	if eventType := c.GetHeader(eventTypeHeader); eventType != "" {
		task.EventType = &eventType
	}

	if _, err := h.enqueue(c.Request.Context(), task); err != nil {
		h.logger.Error("failed to enqueue delivery task", zap.Error(err), zap.String("delivery_id", deliveryID.String()))
		h.countOutcome("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue delivery"})
		return
	}

	h.countOutcome("accepted")
	c.JSON(http.StatusAccepted, models.IngestResponse{
		Status:     "accepted",
		DeliveryID: deliveryID,
		Message:    "Webhook accepted for delivery",
	})
}

func (h *Handler) enqueue(ctx context.Context, task models.DeliveryTask) (uuid.UUID, error) {
	return h.queue.Enqueue(ctx, task, time.Now())
}
