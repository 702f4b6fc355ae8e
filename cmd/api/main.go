// Command api serves the HTTP surface of the webhook delivery service:
// ingestion, subscription management, delivery status reads, the
// signature-generator tool, and health checks. Delivery itself happens out
// of process, in cmd/worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/relayhook/webhook-delivery-service/internal/auditlog"
	"github.com/relayhook/webhook-delivery-service/internal/cache"
	"github.com/relayhook/webhook-delivery-service/internal/config"
	"github.com/relayhook/webhook-delivery-service/internal/database"
	"github.com/relayhook/webhook-delivery-service/internal/healthapi"
	"github.com/relayhook/webhook-delivery-service/internal/ingest"
	"github.com/relayhook/webhook-delivery-service/internal/middleware"
	"github.com/relayhook/webhook-delivery-service/internal/observability"
	"github.com/relayhook/webhook-delivery-service/internal/queue"
	"github.com/relayhook/webhook-delivery-service/internal/sigtool"
	"github.com/relayhook/webhook-delivery-service/internal/statusapi"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
)

const serviceName = "webhook-delivery-api"

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

	subStore := subscription.NewStore(db.Pool)
	subResolver := subscription.NewResolver(subStore, redisCache, cfg.SubscriptionCacheTTL, logger)
	subHandlers := subscription.NewHandlers(subStore, subResolver, logger)

	metrics := observability.NewMetrics(serviceName)

	q := queue.NewQueue(db.Pool)
	ingestHandler := ingest.NewHandler(subResolver, q, logger, metrics)

	log := auditlog.NewLog(db.Pool)
	statusHandlers := statusapi.NewHandlers(log, logger)

	healthHandler := healthapi.NewHandler(db, redisCache, serviceName, cfg.Version)

	rateLimiter := middleware.NewRedisRateLimiter(redisCache, cfg.IngestRPMPerIP)

	router := setupRouter(cfg, logger, metrics, rateLimiter, subHandlers, ingestHandler, statusHandlers, healthHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server forced to shutdown", zap.Error(err))
	}
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
	rateLimiter *middleware.RedisRateLimiter,
	subHandlers *subscription.Handlers,
	ingestHandler *ingest.Handler,
	statusHandlers *statusapi.Handlers,
	healthHandler *healthapi.Handler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Hub-Signature-256", "X-Webhook-Event", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           3600,
	}))
	router.Use(middleware.SecurityHeadersMiddleware(cfg.Environment))
	router.Use(observability.MetricsMiddleware(metrics))

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", observability.PrometheusHandler())

	router.POST("/ingest/:subscription_id", rateLimiter.Middleware(), ingestHandler.Ingest)

	subs := router.Group("/subscriptions")
	{
		subs.POST("", subHandlers.Create)
		subs.GET("", subHandlers.List)
		subs.GET("/:id", subHandlers.Get)
		subs.PATCH("/:id", subHandlers.Update)
		subs.DELETE("/:id", subHandlers.Delete)
	}

	status := router.Group("/status")
	{
		status.GET("/deliveries/:delivery_id", statusHandlers.DeliveryStatus)
		status.GET("/subscriptions/:id/deliveries", statusHandlers.SubscriptionDeliveries)
	}

	router.POST("/tools/signature-generator", sigtool.Generate)

	return router
}
