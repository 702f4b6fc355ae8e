// Package queue realizes the durable task queue named abstractly in
// spec.md §2/§5/§9 as a Postgres-backed table, claimed with
// `SELECT ... FOR UPDATE SKIP LOCKED` and acknowledged late (after the
// attempt row and any retry submission have committed).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/relayhook/webhook-delivery-service/internal/models"
)

// Queue is a Postgres-backed durable scheduler table.
type Queue struct {
	pool *pgxpool.Pool
}

// NewQueue creates a queue over pool.
func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Enqueue submits a task, ready for claim at readyAt (use time.Now() for
// immediate eligibility, or a future time to realize the retry delay).
func (q *Queue) Enqueue(ctx context.Context, task models.DeliveryTask, readyAt time.Time) (uuid.UUID, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	id := uuid.New()
	const query = `
		INSERT INTO delivery_tasks (id, delivery_id, subscription_id, task, ready_at, done)
		VALUES ($1, $2, $3, $4, $5, false)
	`
	if _, err := q.pool.Exec(ctx, query, id, task.DeliveryID, task.SubscriptionID, payload, readyAt); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

// Claimed pairs a claimed row's id with the task it carries, so the caller
// can ack it by id once the attempt row (and any retry) has been written.
type Claimed struct {
	RowID uuid.UUID
	Task  models.DeliveryTask
}

// ClaimBatch claims up to limit tasks that are ready now and not already
// claimed by a live worker, tagging them as claimed by workerID. Uses
// FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row.
func (q *Queue) ClaimBatch(ctx context.Context, workerID string, limit int) ([]Claimed, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectQuery = `
		SELECT id, task FROM delivery_tasks
		WHERE NOT done AND ready_at <= now() AND claimed_at IS NULL
		ORDER BY ready_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, selectQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable tasks: %w", err)
	}

	type rowPayload struct {
		id   uuid.UUID
		task []byte
	}
	var claimable []rowPayload
	for rows.Next() {
		var rp rowPayload
		if err := rows.Scan(&rp.id, &rp.task); err != nil {
			rows.Close()
			return nil, err
		}
		claimable = append(claimable, rp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(claimable) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]uuid.UUID, len(claimable))
	for i, rp := range claimable {
		ids[i] = rp.id
	}

	const claimQuery = `UPDATE delivery_tasks SET claimed_at = now(), claimed_by = $2 WHERE id = ANY($1)`
	if _, err := tx.Exec(ctx, claimQuery, ids, workerID); err != nil {
		return nil, fmt.Errorf("failed to mark tasks claimed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	claimed := make([]Claimed, 0, len(claimable))
	for _, rp := range claimable {
		var task models.DeliveryTask
		if err := json.Unmarshal(rp.task, &task); err != nil {
			continue
		}
		claimed = append(claimed, Claimed{RowID: rp.id, Task: task})
	}
	return claimed, nil
}

// Ack marks a claimed row done. Must only be called after the attempt row
// (and any retry submission) has been committed — the late-ack discipline
// of spec.md §5.
func (q *Queue) Ack(ctx context.Context, rowID uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `UPDATE delivery_tasks SET done = true WHERE id = $1`, rowID)
	if err != nil {
		return fmt.Errorf("failed to ack task %s: %w", rowID, err)
	}
	return nil
}

// ReclaimExpired makes claimed-but-not-done rows older than the lease
// window claimable again, tolerating a worker crash between claim and ack.
func (q *Queue) ReclaimExpired(ctx context.Context, leaseWindow time.Duration) (int64, error) {
	const query = `
		UPDATE delivery_tasks
		SET claimed_at = NULL, claimed_by = NULL
		WHERE NOT done AND claimed_at IS NOT NULL AND claimed_at < now() - $1::interval
	`
	tag, err := q.pool.Exec(ctx, query, leaseWindow.String())
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}
