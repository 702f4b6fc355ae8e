// Package delivery implements the delivery engine (spec.md §4.4): the
// per-task state machine (subscription lookup, event-type filter, outbound
// POST, outcome classification, retry scheduling) plus the periodic
// retention sweep.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/observability"
	"github.com/relayhook/webhook-delivery-service/internal/queue"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
	"go.uber.org/zap"
)

// Config carries the retry/timeout policy of spec.md §6.
type Config struct {
	MaxRetryAttempts   int
	InitialRetryDelay  time.Duration
	RetryBackoffFactor float64
	WebhookTimeout     time.Duration
	// TaskHardCap bounds a single claimed task end-to-end (subscription
	// lookup through attempt-row write), independent of WebhookTimeout's
	// per-HTTP-call budget. It defends against a handler that accepts the
	// connection but stalls mid-response without tripping the client
	// timeout (spec.md §6).
	TaskHardCap time.Duration
}

// SubscriptionGetter resolves a subscription by id, cache-first.
type SubscriptionGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

// QueueClient is the subset of the durable queue the engine needs: claim a
// batch, submit a retry, and ack a completed row.
type QueueClient interface {
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]queue.Claimed, error)
	Enqueue(ctx context.Context, task models.DeliveryTask, readyAt time.Time) (uuid.UUID, error)
	Ack(ctx context.Context, rowID uuid.UUID) error
}

// AttemptLogger writes attempt rows.
type AttemptLogger interface {
	Append(ctx context.Context, row models.WebhookLog) error
}

// Engine executes claimed DeliveryTasks.
type Engine struct {
	queue    QueueClient
	resolver SubscriptionGetter
	log      AttemptLogger
	client   *http.Client
	breakers *hostBreakers
	clock    Clock
	cfg      Config
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewEngine constructs a delivery engine. metrics may be nil, in which case
// no counters are recorded.
func NewEngine(q QueueClient, resolver SubscriptionGetter, log AttemptLogger, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		queue:    q,
		resolver: resolver,
		log:      log,
		client:   &http.Client{Timeout: cfg.WebhookTimeout},
		breakers: newHostBreakers(logger),
		clock:    systemClock{},
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run starts workerCount independent claim-execute-ack loops, matching
// spec.md §5's model: each task is handled by exactly one worker at a time,
// workers are independent and may run across machines. Blocks until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context, workerCount int, pollInterval time.Duration, batchSize int) {
	done := make(chan struct{})
	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		go func() {
			e.loop(ctx, workerID, pollInterval, batchSize)
			done <- struct{}{}
		}()
	}
	for i := 0; i < workerCount; i++ {
		<-done
	}
}

func (e *Engine) loop(ctx context.Context, workerID string, pollInterval time.Duration, batchSize int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.drainOnce(ctx, workerID, batchSize)
		}
	}
}

func (e *Engine) drainOnce(ctx context.Context, workerID string, batchSize int) {
	claimed, err := e.queue.ClaimBatch(ctx, workerID, batchSize)
	if err != nil {
		// Transient store error: logged, retried on the next poll tick
		// rather than crashing the worker (spec.md §7).
		e.logger.Warn("failed to claim delivery tasks", zap.Error(err))
		return
	}
	if e.metrics != nil && len(claimed) > 0 {
		e.metrics.QueueClaimedTotal.Add(float64(len(claimed)))
	}
	for _, c := range claimed {
		e.executeAndAck(ctx, c)
	}
}

// executeAndAck runs one task to completion, guaranteeing exactly one
// attempt row is written, then acks the claim. Ack only happens after the
// attempt row and any retry submission have committed (late-ack discipline,
// spec.md §5).
func (e *Engine) executeAndAck(ctx context.Context, claimed queue.Claimed) {
	if e.cfg.TaskHardCap > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TaskHardCap)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Append(ctx, models.WebhookLog{
				DeliveryID:     claimed.Task.DeliveryID,
				SubscriptionID: &claimed.Task.SubscriptionID,
				Payload:        claimed.Task.Payload,
				EventType:      claimed.Task.EventType,
				AttemptNumber:  claimed.Task.AttemptNumber,
				Status:         models.StatusFailure,
				ErrorDetails:   strPtr(fmt.Sprintf("Unexpected error: %v", r)),
			})
			if err := e.queue.Ack(ctx, claimed.RowID); err != nil {
				e.logger.Error("failed to ack task after panic recovery", zap.Error(err))
			}
		}
	}()

	e.execute(ctx, claimed.Task)

	if err := e.queue.Ack(ctx, claimed.RowID); err != nil {
		e.logger.Error("failed to ack delivered task", zap.Error(err), zap.String("delivery_id", claimed.Task.DeliveryID.String()))
	}
}

// execute runs the state machine of spec.md §4.4 for a single task.
func (e *Engine) execute(ctx context.Context, task models.DeliveryTask) {
	sub, err := e.resolver.Get(ctx, task.SubscriptionID)
	if errors.Is(err, subscription.ErrNotFound) {
		e.terminal(ctx, task, "", nil, "Subscription not found")
		return
	}
	if err != nil {
		e.terminal(ctx, task, "", nil, fmt.Sprintf("Unexpected error: %v", err))
		return
	}

	if !sub.IsActive {
		e.terminal(ctx, task, sub.TargetURL, nil, "Subscription is inactive")
		return
	}

	if !matchEventType(task.EventType, sub.EventTypes) {
		eventType := ""
		if task.EventType != nil {
			eventType = *task.EventType
		}
		e.terminal(ctx, task, sub.TargetURL, nil, fmt.Sprintf("Event type %s doesn't match subscription filters", eventType))
		return
	}

	statusCode, errDetails := e.post(ctx, sub, task)

	if errDetails == "" {
		e.writeRow(ctx, task, sub.TargetURL, &statusCode, models.StatusSuccess, nil)
		return
	}

	if task.AttemptNumber < e.cfg.MaxRetryAttempts {
		e.writeRow(ctx, task, sub.TargetURL, statusCodeOrNil(statusCode), models.StatusFailedAttempt, strPtr(errDetails))
		e.scheduleRetry(ctx, task)
		return
	}

	finalDetails := fmt.Sprintf("Maximum retry attempts reached. Last error: %s", errDetails)
	e.writeRow(ctx, task, sub.TargetURL, statusCodeOrNil(statusCode), models.StatusFailure, strPtr(finalDetails))
}

// matchEventType implements spec.md §4.4's event-type filter.
func matchEventType(eventType *string, subscribed []string) bool {
	if len(subscribed) == 0 {
		return true
	}
	if eventType == nil {
		return false
	}
	for _, s := range subscribed {
		if s == *eventType {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleRetry(ctx context.Context, task models.DeliveryTask) {
	delay := backoffDelay(e.cfg.InitialRetryDelay, e.cfg.RetryBackoffFactor, task.AttemptNumber)
	next := task
	next.AttemptNumber = task.AttemptNumber + 1
	if _, err := e.queue.Enqueue(ctx, next, e.clock.Now().Add(delay)); err != nil {
		e.logger.Error("failed to schedule retry", zap.Error(err), zap.String("delivery_id", task.DeliveryID.String()))
		return
	}
	if e.metrics != nil {
		e.metrics.RetryScheduledTotal.Inc()
	}
}

// backoffDelay computes INITIAL_RETRY_DELAY x BACKOFF_FACTOR^(attempt-1),
// the backoff defined in spec.md §4.4 and §GLOSSARY.
func backoffDelay(initial time.Duration, factor float64, attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= factor
	}
	return time.Duration(float64(initial) * multiplier)
}

func (e *Engine) terminal(ctx context.Context, task models.DeliveryTask, targetURL string, statusCode *int, details string) {
	e.writeRow(ctx, task, targetURL, statusCode, models.StatusFailure, strPtr(details))
}

func (e *Engine) writeRow(ctx context.Context, task models.DeliveryTask, targetURL string, statusCode *int, status models.DeliveryStatus, details *string) {
	if err := e.log.Append(ctx, models.WebhookLog{
		DeliveryID:     task.DeliveryID,
		SubscriptionID: &task.SubscriptionID,
		TargetURL:      targetURL,
		EventType:      task.EventType,
		Payload:        task.Payload,
		AttemptNumber:  task.AttemptNumber,
		StatusCode:     statusCode,
		Status:         status,
		ErrorDetails:   details,
	}); err != nil {
		e.logger.Error("failed to write attempt row", zap.Error(err), zap.String("delivery_id", task.DeliveryID.String()))
	}
}

func statusCodeOrNil(code int) *int {
	if code == 0 {
		return nil
	}
	return &code
}

func strPtr(s string) *string { return &s }
