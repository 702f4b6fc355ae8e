package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/cache"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "subscription:"

// Resolver is the read-through cache over the store described in
// spec.md §4.2: get() hits the cache first, falling back to the store on
// miss and repopulating the cache; any mutation path invalidates.
type Resolver struct {
	store  *Store
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a subscription resolver. cache may be nil, in which
// case every lookup goes straight to the store.
func NewResolver(store *Store, redisCache *cache.RedisCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, cache: redisCache, ttl: ttl, logger: logger}
}

// Get resolves a subscription snapshot by id: cache hit, or store miss
// followed by a best-effort cache fill. Cache unavailability never fails
// the lookup — it is treated as a miss and the store is consulted.
func (r *Resolver) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	key := cacheKeyPrefix + id.String()

	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil {
			var snap models.Snapshot
			if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
				return snapshotToSubscription(snap), nil
			}
		}
	}

	sub, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.put(ctx, sub)
	return sub, nil
}

// Invalidate removes any cached entry for id. Called after every mutation
// (update or delete) commits to the store. Idempotent and best-effort.
func (r *Resolver) Invalidate(ctx context.Context, id uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, cacheKeyPrefix+id.String()); err != nil {
		r.logger.Warn("subscription cache invalidation failed", zap.String("subscription_id", id.String()), zap.Error(err))
	}
}

func (r *Resolver) put(ctx context.Context, sub *models.Subscription) {
	if r.cache == nil {
		return
	}
	snap := subscriptionToSnapshot(sub)
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKeyPrefix+sub.ID.String(), raw, r.ttl); err != nil {
		r.logger.Warn("subscription cache write failed", zap.String("subscription_id", sub.ID.String()), zap.Error(err))
	}
}

func subscriptionToSnapshot(sub *models.Subscription) models.Snapshot {
	return models.Snapshot{
		ID:         sub.ID.String(),
		TargetURL:  sub.TargetURL,
		SecretKey:  sub.SecretKey,
		EventTypes: sub.EventTypes,
		IsActive:   sub.IsActive,
	}
}

func snapshotToSubscription(snap models.Snapshot) *models.Subscription {
	id, _ := uuid.Parse(snap.ID)
	return &models.Subscription{
		ID:         id,
		TargetURL:  snap.TargetURL,
		SecretKey:  snap.SecretKey,
		EventTypes: snap.EventTypes,
		IsActive:   snap.IsActive,
	}
}
