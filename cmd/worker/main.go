// Command worker runs the delivery engine: it claims tasks from the durable
// queue, executes them against subscriber endpoints, and sweeps expired
// attempt log rows. Any number of worker processes may run concurrently
// against the same database (spec.md §5).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relayhook/webhook-delivery-service/internal/auditlog"
	"github.com/relayhook/webhook-delivery-service/internal/cache"
	"github.com/relayhook/webhook-delivery-service/internal/config"
	"github.com/relayhook/webhook-delivery-service/internal/database"
	"github.com/relayhook/webhook-delivery-service/internal/delivery"
	"github.com/relayhook/webhook-delivery-service/internal/observability"
	"github.com/relayhook/webhook-delivery-service/internal/queue"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
)

const serviceName = "webhook-delivery-worker"
const batchSize = 20
const reclaimInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.Version, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	db, err := database.NewPostgresDB(ctx, database.Config{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DatabaseMaxConns,
		MinConns:        cfg.DatabaseMinConns,
		MaxConnLifetime: cfg.DatabaseMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, "migrations", logger); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	redisCache, err := cache.NewRedisCache(ctx, cache.Config{URL: cfg.RedisURL}, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	metrics := observability.NewMetrics(serviceName)

	q := queue.NewQueue(db.Pool)
	subStore := subscription.NewStore(db.Pool)
	subResolver := subscription.NewResolver(subStore, redisCache, cfg.SubscriptionCacheTTL, logger)
	log := auditlog.NewLog(db.Pool)
	sweeper := delivery.NewSweeper(db.Pool, logger, metrics)

	engine := delivery.NewEngine(q, subResolver, log, delivery.Config{
		MaxRetryAttempts:   cfg.MaxRetryAttempts,
		InitialRetryDelay:  cfg.InitialRetryDelay,
		RetryBackoffFactor: cfg.RetryBackoffFactor,
		WebhookTimeout:     cfg.WebhookTimeout,
		TaskHardCap:        cfg.TaskHardCap,
	}, logger, metrics)

	runCtx, cancel := context.WithCancel(ctx)

	go engine.Run(runCtx, cfg.WorkerCount, cfg.WorkerPollEvery, batchSize)
	go sweeper.Run(runCtx, time.Hour, cfg.LogRetentionHours)
	go runReclaimLoop(runCtx, q, cfg.ClaimLeaseTime, logger, metrics)

	logger.Info("worker started",
		zap.Int("worker_count", cfg.WorkerCount),
		zap.Duration("poll_interval", cfg.WorkerPollEvery),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
}

// runReclaimLoop makes claimed-but-unacked tasks claimable again after a
// worker crash, per spec.md §5's lease-expiry reclaim.
func runReclaimLoop(ctx context.Context, q *queue.Queue, leaseTime time.Duration, logger *zap.Logger, metrics *observability.Metrics) {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.ReclaimExpired(ctx, leaseTime)
			if err != nil {
				logger.Error("failed to reclaim expired claims", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("reclaimed expired delivery task claims", zap.Int64("count", n))
				if metrics != nil {
					metrics.QueueReclaimedTotal.Add(float64(n))
				}
			}
		}
	}
}
