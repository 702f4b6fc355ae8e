package subscription_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
	helpers "github.com/relayhook/webhook-delivery-service/tests/helpers"
)

func TestStoreCreateGetUpdateDelete(t *testing.T) {
	db, cleanup := helpers.SetupTestDB(t)
	defer cleanup()

	store := subscription.NewStore(db.Pool)
	ctx := context.Background()

	created, err := store.Create(ctx, models.CreateSubscriptionRequest{
		TargetURL:  "https://example.test/hook",
		SecretKey:  "s3cr3t",
		EventTypes: []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.IsActive != true {
		t.Fatalf("expected new subscription to be active by default")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TargetURL != created.TargetURL {
		t.Fatalf("expected round-tripped target_url, got %s", got.TargetURL)
	}

	newURL := "https://example.test/hook/v2"
	updated, err := store.Update(ctx, created.ID, models.UpdateSubscriptionRequest{TargetURL: &newURL})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TargetURL != newURL {
		t.Fatalf("expected target_url to update, got %s", updated.TargetURL)
	}
	if len(updated.EventTypes) != 1 || updated.EventTypes[0] != "order.created" {
		t.Fatalf("expected untouched fields to survive partial update, got %+v", updated.EventTypes)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(ctx, created.ID); err != subscription.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	db, cleanup := helpers.SetupTestDB(t)
	defer cleanup()

	store := subscription.NewStore(db.Pool)
	_, err := store.Get(context.Background(), uuid.New())
	if err != subscription.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
