package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/queue"
	helpers "github.com/relayhook/webhook-delivery-service/tests/helpers"
)

func TestEnqueueClaimAck(t *testing.T) {
	db, cleanup := helpers.SetupTestDB(t)
	defer cleanup()

	q := queue.NewQueue(db.Pool)
	ctx := context.Background()

	task := models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: uuid.New(), Payload: []byte(`{"a":1}`), AttemptNumber: 1}
	rowID, err := q.Enqueue(ctx, task, time.Now())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.ClaimBatch(ctx, "worker-1", 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].RowID != rowID {
		t.Fatalf("expected exactly the enqueued row claimed, got %+v", claimed)
	}

	// A second claim before ack must not see the already-claimed row.
	second, err := q.ClaimBatch(ctx, "worker-2", 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no rows claimable while already claimed, got %d", len(second))
	}

	if err := q.Ack(ctx, rowID); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestClaimBatchSkipsFutureReadyAt(t *testing.T) {
	db, cleanup := helpers.SetupTestDB(t)
	defer cleanup()

	q := queue.NewQueue(db.Pool)
	ctx := context.Background()

	task := models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: uuid.New(), Payload: []byte(`{}`), AttemptNumber: 2}
	if _, err := q.Enqueue(ctx, task, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.ClaimBatch(ctx, "worker-1", 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected a future ready_at to be unclaimable, got %d", len(claimed))
	}
}

func TestReclaimExpired(t *testing.T) {
	db, cleanup := helpers.SetupTestDB(t)
	defer cleanup()

	q := queue.NewQueue(db.Pool)
	ctx := context.Background()

	task := models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: uuid.New(), Payload: []byte(`{}`), AttemptNumber: 1}
	if _, err := q.Enqueue(ctx, task, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.ClaimBatch(ctx, "crashed-worker", 10); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := q.ReclaimExpired(ctx, -time.Second) // lease "expired" immediately
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one row reclaimed, got %d", n)
	}

	claimed, err := q.ClaimBatch(ctx, "worker-2", 10)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected the reclaimed row to be claimable again, got %d", len(claimed))
	}
}
