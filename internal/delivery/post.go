package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/signing"
)

const userAgent = "Webhook-Delivery-Service/1.0"
const signatureHeader = "X-Hub-Signature-256"
const eventTypeHeader = "X-Webhook-Event"
const deliveryIDHeader = "X-Webhook-ID"

// post issues the outbound HTTP call for one attempt and classifies the
// outcome per spec.md §4.4. Returns the HTTP status code obtained (0 if
// none) and a non-empty errDetails string iff the attempt failed.
func (e *Engine) post(ctx context.Context, sub *models.Subscription, task models.DeliveryTask) (int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(task.Payload))
	if err != nil {
		return 0, fmt.Sprintf("Request error: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(deliveryIDHeader, task.DeliveryID.String())
	if sub.SecretKey != nil && *sub.SecretKey != "" {
		req.Header.Set(signatureHeader, signing.SignaturePrefix+signing.Sign(task.Payload, *sub.SecretKey))
	}
	if task.EventType != nil {
		req.Header.Set(eventTypeHeader, *task.EventType)
	}

	breaker := e.breakers.forTarget(sub.TargetURL)
	start := time.Now()
	result, err := breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return resp.StatusCode, nil
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		e.observeAttempt(models.StatusFailedAttempt, duration)
		return 0, fmt.Sprintf("Request error: %v", err)
	}

	statusCode := result.(int)
	if statusCode >= 200 && statusCode < 300 {
		e.observeAttempt(models.StatusSuccess, duration)
		return statusCode, ""
	}
	e.observeAttempt(models.StatusFailedAttempt, duration)
	return statusCode, fmt.Sprintf("Target returned status code: %d", statusCode)
}

// observeAttempt records delivery-attempt metrics for a single outbound call.
// The label reflects whether this particular HTTP round trip succeeded, not
// the task's final outcome (that distinction — failed attempt vs. exhausted
// failure — is recorded separately by writeRow).
func (e *Engine) observeAttempt(status models.DeliveryStatus, durationSeconds float64) {
	if e.metrics == nil {
		return
	}
	e.metrics.DeliveryAttemptTotal.WithLabelValues(string(status)).Inc()
	e.metrics.DeliveryAttemptDuration.WithLabelValues(string(status)).Observe(durationSeconds)
}
