package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/signing"
	"github.com/relayhook/webhook-delivery-service/internal/subscription"
	"go.uber.org/zap"
)

type fakeResolver struct {
	sub *models.Subscription
	err error
}

func (f *fakeResolver) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return f.sub, f.err
}

type fakeEnqueuer struct {
	tasks []models.DeliveryTask
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task models.DeliveryTask, readyAt time.Time) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return uuid.New(), nil
}

func newTestRouter(resolver SubscriptionGetter, q Enqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(resolver, q, zap.NewNop(), nil)
	r.POST("/ingest/:subscription_id", h.Ingest)
	return r
}

func TestIngestHappyPathNoSecret(t *testing.T) {
	sub := &models.Subscription{ID: uuid.New(), TargetURL: "http://t/ok", IsActive: true}
	enq := &fakeEnqueuer{}
	r := newTestRouter(&fakeResolver{sub: sub}, enq)

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+sub.ID.String(), strings.NewReader(`{"e":"a"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("expected one task enqueued, got %d", len(enq.tasks))
	}
}

func TestIngestSignedSuccess(t *testing.T) {
	secret := "k"
	sub := &models.Subscription{ID: uuid.New(), TargetURL: "http://t/ok", SecretKey: &secret, IsActive: true}
	enq := &fakeEnqueuer{}
	r := newTestRouter(&fakeResolver{sub: sub}, enq)

	body := `{"x":1}`
	canonical, _ := signing.Canonicalize(map[string]interface{}{"x": float64(1)})
	sig := signing.Sign(canonical, secret)

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+sub.ID.String(), strings.NewReader(body))
	req.Header.Set(signatureHeader, "sha256="+sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestSignedFailure(t *testing.T) {
	secret := "k"
	sub := &models.Subscription{ID: uuid.New(), TargetURL: "http://t/ok", SecretKey: &secret, IsActive: true}
	enq := &fakeEnqueuer{}
	r := newTestRouter(&fakeResolver{sub: sub}, enq)

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+sub.ID.String(), strings.NewReader(`{"x":1}`))
	req.Header.Set(signatureHeader, "sha256=deadbeef00000000000000000000000000000000000000000000000000000000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(enq.tasks) != 0 {
		t.Fatalf("expected no task enqueued on signature failure")
	}
}

func TestIngestMissingSubscription(t *testing.T) {
	enq := &fakeEnqueuer{}
	r := newTestRouter(&fakeResolver{err: subscription.ErrNotFound}, enq)

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+uuid.New().String(), strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestIngestEnqueueFailure(t *testing.T) {
	sub := &models.Subscription{ID: uuid.New(), TargetURL: "http://t/ok", IsActive: true}
	r := newTestRouter(&fakeResolver{sub: sub}, &fakeEnqueuer{err: context.DeadlineExceeded})

	req := httptest.NewRequest(http.MethodPost, "/ingest/"+sub.ID.String(), strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
