package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	StatusSuccess       DeliveryStatus = "SUCCESS"
	StatusFailedAttempt DeliveryStatus = "FAILED_ATTEMPT"
	StatusFailure       DeliveryStatus = "FAILURE"
)

// Subscription represents a registered webhook endpoint.
type Subscription struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TargetURL  string    `json:"target_url" db:"target_url"`
	SecretKey  *string   `json:"-" db:"secret_key"`
	EventTypes []string  `json:"event_types" db:"event_types"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Snapshot is the cached, read-through view of a subscription
// (internal/subscription's Resolver).
type Snapshot struct {
	ID         string   `json:"id"`
	TargetURL  string   `json:"target_url"`
	SecretKey  *string  `json:"secret_key,omitempty"`
	EventTypes []string `json:"event_types"`
	IsActive   bool     `json:"is_active"`
}

// WebhookLog is a single, immutable attempt record. SubscriptionID is
// nullable: it is set to NULL by the subscriptions FK's ON DELETE SET NULL
// when the parent subscription is deleted, so the row itself (and its
// audit trail) survives until the retention sweep removes it.
type WebhookLog struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	DeliveryID     uuid.UUID      `json:"delivery_id" db:"delivery_id"`
	SubscriptionID *uuid.UUID     `json:"subscription_id,omitempty" db:"subscription_id"`
	TargetURL      string         `json:"target_url" db:"target_url"`
	EventType      *string        `json:"event_type,omitempty" db:"event_type"`
	Payload        []byte         `json:"payload" db:"payload"`
	AttemptNumber  int            `json:"attempt_number" db:"attempt_number"`
	StatusCode     *int           `json:"status_code,omitempty" db:"status_code"`
	Status         DeliveryStatus `json:"status" db:"status"`
	ErrorDetails   *string        `json:"error_details,omitempty" db:"error_details"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// DeliveryTask is the logical unit of work handed to a worker.
type DeliveryTask struct {
	DeliveryID     uuid.UUID `json:"delivery_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Payload        []byte    `json:"payload"`
	AttemptNumber  int       `json:"attempt_number"`
	EventType      *string   `json:"event_type,omitempty"`
}

// CreateSubscriptionRequest is the body of POST /subscriptions.
type CreateSubscriptionRequest struct {
	TargetURL  string   `json:"target_url" binding:"required"`
	SecretKey  string   `json:"secret_key,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// UpdateSubscriptionRequest is the body of PATCH /subscriptions/:id. Nil
// fields are left unchanged.
type UpdateSubscriptionRequest struct {
	TargetURL  *string   `json:"target_url,omitempty"`
	SecretKey  *string   `json:"secret_key,omitempty"`
	EventTypes *[]string `json:"event_types,omitempty"`
	IsActive   *bool     `json:"is_active,omitempty"`
}

// IngestResponse is returned by POST /ingest/:subscription_id on acceptance.
type IngestResponse struct {
	Status     string    `json:"status"`
	DeliveryID uuid.UUID `json:"delivery_id"`
	Message    string    `json:"message"`
}

// DeliveryStatusResponse is returned by GET /status/deliveries/:delivery_id.
type DeliveryStatusResponse struct {
	DeliveryID     uuid.UUID      `json:"delivery_id"`
	SubscriptionID uuid.UUID      `json:"subscription_id"`
	TotalAttempts  int            `json:"total_attempts"`
	LatestStatus   DeliveryStatus `json:"latest_status"`
	LatestAttempt  time.Time      `json:"latest_attempt"`
	Logs           []WebhookLog   `json:"logs"`
}

// SubscriptionDeliveriesResponse is returned by
// GET /status/subscriptions/:id/deliveries.
type SubscriptionDeliveriesResponse struct {
	SubscriptionID        uuid.UUID    `json:"subscription_id"`
	TotalDeliveries       int          `json:"total_deliveries"`
	SuccessfulDeliveries  int          `json:"successful_deliveries"`
	FailedDeliveries      int          `json:"failed_deliveries"`
	RecentLogs            []WebhookLog `json:"recent_logs"`
}

// SignatureGeneratorRequest is the body of POST /tools/signature-generator.
type SignatureGeneratorRequest struct {
	Payload   map[string]interface{} `json:"payload" binding:"required"`
	SecretKey string                  `json:"secret_key" binding:"required"`
}

// SignatureGeneratorResponse is the response of the signature-generator tool.
type SignatureGeneratorResponse struct {
	XHubSignature256 string `json:"x_hub_signature_256"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
