// Package healthapi implements the liveness/readiness surface, checking the
// store and cache the ingestion and status paths both depend on.
package healthapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relayhook/webhook-delivery-service/internal/models"
)

// Pinger is satisfied by both database.PostgresDB and cache.RedisCache.
type Pinger interface {
	Health(ctx context.Context) error
}

// Handler serves GET /health.
type Handler struct {
	db      Pinger
	redis   Pinger
	service string
	version string
}

// NewHandler creates a health handler over the store and cache connections.
func NewHandler(db, redis Pinger, service, version string) *Handler {
	return &Handler{db: db, redis: redis, service: service, version: version}
}

// Check answers with 200 when both dependencies are healthy, 503 otherwise.
func (h *Handler) Check(c *gin.Context) {
	checks := map[string]string{}
	healthy := true

	if err := h.db.Health(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.redis.Health(c.Request.Context()); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.HealthResponse{
		Status:  status,
		Service: h.service,
		Version: h.version,
		Checks:  checks,
	})
}
