// Package subscription implements subscription CRUD against the store and
// the read-through cache layer described in spec.md §4.2.
package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relayhook/webhook-delivery-service/internal/models"
)

// ErrNotFound is returned when a subscription row does not exist.
var ErrNotFound = fmt.Errorf("subscription not found")

// Store performs plain reads/writes against the subscriptions table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a subscription store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new subscription and returns the full persisted record.
func (s *Store) Create(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	sub := &models.Subscription{
		ID:         uuid.New(),
		TargetURL:  req.TargetURL,
		EventTypes: req.EventTypes,
		IsActive:   true,
	}
	if req.SecretKey != "" {
		sub.SecretKey = &req.SecretKey
	}
	if sub.EventTypes == nil {
		sub.EventTypes = []string{}
	}

	const query = `
		INSERT INTO subscriptions (id, target_url, secret_key, event_types, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, sub.ID, sub.TargetURL, sub.SecretKey, sub.EventTypes, sub.IsActive).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Get loads a subscription by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	const query = `
		SELECT id, target_url, secret_key, event_types, is_active, created_at, updated_at
		FROM subscriptions WHERE id = $1
	`
	sub := &models.Subscription{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sub.ID, &sub.TargetURL, &sub.SecretKey, &sub.EventTypes,
		&sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub, nil
}

// List returns all subscriptions, most recently created first.
func (s *Store) List(ctx context.Context) ([]models.Subscription, error) {
	const query = `
		SELECT id, target_url, secret_key, event_types, is_active, created_at, updated_at
		FROM subscriptions ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(
			&sub.ID, &sub.TargetURL, &sub.SecretKey, &sub.EventTypes,
			&sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Update applies a partial update and returns the new record.
func (s *Store) Update(ctx context.Context, id uuid.UUID, req models.UpdateSubscriptionRequest) (*models.Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.TargetURL != nil {
		sub.TargetURL = *req.TargetURL
	}
	if req.SecretKey != nil {
		sub.SecretKey = req.SecretKey
	}
	if req.EventTypes != nil {
		sub.EventTypes = *req.EventTypes
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	const query = `
		UPDATE subscriptions
		SET target_url = $2, secret_key = $3, event_types = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err = s.pool.QueryRow(ctx, query, sub.ID, sub.TargetURL, sub.SecretKey, sub.EventTypes, sub.IsActive).
		Scan(&sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return sub, nil
}

// Delete removes a subscription row. Attempt log rows referencing it survive
// (their subscription_id is nulled by the FK's ON DELETE SET NULL); they
// remain for audit until the retention sweep removes them.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
