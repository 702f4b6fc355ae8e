package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/relayhook/webhook-delivery-service/internal/cache"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewRedisCacheFromClient(client, zap.NewNop())
}

func TestResolverGetReturnsCachedSnapshot(t *testing.T) {
	rc := newTestCache(t)
	store := NewStore(nil)
	resolver := NewResolver(store, rc, time.Hour, zap.NewNop())

	id := uuid.New()
	secret := "s3cr3t"
	sub := &models.Subscription{ID: id, TargetURL: "http://example.test/hook", SecretKey: &secret, EventTypes: []string{"a"}, IsActive: true}
	resolver.put(context.Background(), sub)

	got, err := resolver.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetURL != sub.TargetURL || *got.SecretKey != *sub.SecretKey {
		t.Fatalf("expected cached snapshot to round-trip, got %+v", got)
	}
}

func TestResolverInvalidateRemovesEntry(t *testing.T) {
	rc := newTestCache(t)
	store := NewStore(nil)
	resolver := NewResolver(store, rc, time.Hour, zap.NewNop())

	id := uuid.New()
	resolver.put(context.Background(), &models.Subscription{ID: id, TargetURL: "http://example.test", IsActive: true})
	resolver.Invalidate(context.Background(), id)

	if _, err := rc.Get(context.Background(), cacheKeyPrefix+id.String()); err == nil {
		t.Fatalf("expected cache miss after invalidation")
	}
}
