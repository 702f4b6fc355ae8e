// Package auditlog implements the append-only attempt log (spec.md §4.5):
// every attempt writes exactly one row, and status reads aggregate per
// delivery and per subscription.
package auditlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relayhook/webhook-delivery-service/internal/models"
)

// ErrNoRows is returned when a delivery_id has no attempt rows at all.
var ErrNoRows = fmt.Errorf("no attempt rows for delivery")

// Log writes and reads webhook_logs rows.
type Log struct {
	pool *pgxpool.Pool
}

// NewLog creates an attempt log over pool.
func NewLog(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

// Append writes exactly one attempt row. Writes are unconditional: even a
// pre-HTTP termination (subscription not found, inactive, filtered) writes
// a row so the delivery_id has at least one record (spec.md §4.5, §8 I1).
func (l *Log) Append(ctx context.Context, row models.WebhookLog) error {
	row.ID = uuid.New()
	const query = `
		INSERT INTO webhook_logs (
			id, delivery_id, subscription_id, target_url, event_type,
			payload, attempt_number, status_code, status, error_details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := l.pool.Exec(ctx, query,
		row.ID, row.DeliveryID, row.SubscriptionID, row.TargetURL, row.EventType,
		row.Payload, row.AttemptNumber, row.StatusCode, row.Status, row.ErrorDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt row: %w", err)
	}
	return nil
}

// DeliveryStatus answers GET /status/deliveries/{delivery_id}.
func (l *Log) DeliveryStatus(ctx context.Context, deliveryID uuid.UUID) (*models.DeliveryStatusResponse, error) {
	logs, err := l.deliveryLogs(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, ErrNoRows
	}

	last := logs[len(logs)-1]
	var subscriptionID uuid.UUID
	if last.SubscriptionID != nil {
		subscriptionID = *last.SubscriptionID
	}
	return &models.DeliveryStatusResponse{
		DeliveryID:     deliveryID,
		SubscriptionID: subscriptionID,
		TotalAttempts:  len(logs),
		LatestStatus:   last.Status,
		LatestAttempt:  last.CreatedAt,
		Logs:           logs,
	}, nil
}

func (l *Log) deliveryLogs(ctx context.Context, deliveryID uuid.UUID) ([]models.WebhookLog, error) {
	const query = `
		SELECT id, delivery_id, subscription_id, target_url, event_type,
		       payload, attempt_number, status_code, status, error_details, created_at
		FROM webhook_logs
		WHERE delivery_id = $1
		ORDER BY created_at ASC
	`
	rows, err := l.pool.Query(ctx, query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// SubscriptionDeliveries answers
// GET /status/subscriptions/{id}/deliveries?limit=N. Counts are taken over
// DISTINCT delivery_id per spec.md §4.5.
func (l *Log) SubscriptionDeliveries(ctx context.Context, subscriptionID uuid.UUID, limit int) (*models.SubscriptionDeliveriesResponse, error) {
	const countsQuery = `
		SELECT
			COUNT(DISTINCT delivery_id),
			COUNT(DISTINCT delivery_id) FILTER (WHERE status = 'SUCCESS'),
			COUNT(DISTINCT delivery_id) FILTER (WHERE status = 'FAILURE')
		FROM webhook_logs
		WHERE subscription_id = $1
	`
	resp := &models.SubscriptionDeliveriesResponse{SubscriptionID: subscriptionID}
	err := l.pool.QueryRow(ctx, countsQuery, subscriptionID).Scan(
		&resp.TotalDeliveries, &resp.SuccessfulDeliveries, &resp.FailedDeliveries,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscription deliveries: %w", err)
	}

	const recentQuery = `
		SELECT id, delivery_id, subscription_id, target_url, event_type,
		       payload, attempt_number, status_code, status, error_details, created_at
		FROM webhook_logs
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := l.pool.Query(ctx, recentQuery, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	resp.RecentLogs = logs
	return resp, nil
}

func scanLogs(rows pgx.Rows) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	for rows.Next() {
		var row models.WebhookLog
		if err := rows.Scan(
			&row.ID, &row.DeliveryID, &row.SubscriptionID, &row.TargetURL, &row.EventType,
			&row.Payload, &row.AttemptNumber, &row.StatusCode, &row.Status, &row.ErrorDetails, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, row)
	}
	return logs, rows.Err()
}
