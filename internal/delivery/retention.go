package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relayhook/webhook-delivery-service/internal/observability"
)

// Sweeper periodically deletes attempt rows past their retention window,
// grounded on the teacher's retention purger.
type Sweeper struct {
	pool    *pgxpool.Pool
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSweeper creates a retention sweeper over pool. metrics may be nil.
func NewSweeper(pool *pgxpool.Pool, logger *zap.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{pool: pool, logger: logger, metrics: metrics}
}

// Run executes a sweep every interval, deleting webhook_logs rows with
// created_at older than retention (spec.md §4.4's retention sweep, default
// every 3600s / 72h). Blocks until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, retention); err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep deletes exactly the rows with created_at < now - retention, and
// returns the count deleted (spec.md §8 invariant 7).
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired attempt rows: %w", err)
	}
	deleted := tag.RowsAffected()
	if s.metrics != nil && deleted > 0 {
		s.metrics.RetentionRowsDeletedTotal.Add(float64(deleted))
	}
	s.logger.Info("retention sweep completed", zap.Int64("rows_deleted", deleted))
	return deleted, nil
}
