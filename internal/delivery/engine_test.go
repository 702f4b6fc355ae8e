package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/queue"
	"go.uber.org/zap"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 80 * time.Second},
	}
	for _, tt := range tests {
		got := backoffDelay(10*time.Second, 2, tt.attempt)
		if got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestMatchEventType(t *testing.T) {
	s := func(v string) *string { return &v }
	tests := []struct {
		name       string
		eventType  *string
		subscribed []string
		want       bool
	}{
		{"no filter accepts all", nil, nil, true},
		{"filter set, no event type rejects", nil, []string{"a"}, false},
		{"filter set, matching accepts", s("a"), []string{"a", "b"}, true},
		{"filter set, non-matching rejects", s("c"), []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchEventType(tt.eventType, tt.subscribed); got != tt.want {
				t.Errorf("matchEventType() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeResolver struct {
	sub *models.Subscription
	err error
}

func (f *fakeResolver) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return f.sub, f.err
}

type fakeQueue struct {
	enqueued []models.DeliveryTask
	acked    []uuid.UUID
}

func (f *fakeQueue) ClaimBatch(ctx context.Context, workerID string, limit int) ([]queue.Claimed, error) {
	return nil, nil
}

func (f *fakeQueue) Enqueue(ctx context.Context, task models.DeliveryTask, readyAt time.Time) (uuid.UUID, error) {
	f.enqueued = append(f.enqueued, task)
	return uuid.New(), nil
}

func (f *fakeQueue) Ack(ctx context.Context, rowID uuid.UUID) error {
	f.acked = append(f.acked, rowID)
	return nil
}

type fakeLog struct {
	rows []models.WebhookLog
}

func (f *fakeLog) Append(ctx context.Context, row models.WebhookLog) error {
	f.rows = append(f.rows, row)
	return nil
}

func newTestEngine(resolver SubscriptionGetter, q QueueClient, log AttemptLogger) *Engine {
	return &Engine{
		queue:    q,
		resolver: resolver,
		log:      log,
		client:   &http.Client{Timeout: 5 * time.Second},
		breakers: newHostBreakers(zap.NewNop()),
		clock:    systemClock{},
		cfg:      Config{MaxRetryAttempts: 5, InitialRetryDelay: 10 * time.Second, RetryBackoffFactor: 2, WebhookTimeout: 5 * time.Second},
		logger:   zap.NewNop(),
	}
}

// S1 — happy path: 200 response yields exactly one SUCCESS row.
func TestExecuteHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &models.Subscription{ID: uuid.New(), TargetURL: srv.URL, IsActive: true}
	log := &fakeLog{}
	q := &fakeQueue{}
	e := newTestEngine(&fakeResolver{sub: sub}, q, log)

	task := models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: sub.ID, Payload: []byte(`{"e":"a"}`), AttemptNumber: 1}
	e.execute(context.Background(), task)

	if len(log.rows) != 1 {
		t.Fatalf("expected exactly one attempt row, got %d", len(log.rows))
	}
	row := log.rows[0]
	if row.Status != models.StatusSuccess || row.AttemptNumber != 1 || *row.StatusCode != 200 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected no retry scheduled on success")
	}
}

// S5 — retry to exhaustion: always 500, MaxRetryAttempts=3.
func TestExecuteRetryToExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := &models.Subscription{ID: uuid.New(), TargetURL: srv.URL, IsActive: true}
	log := &fakeLog{}
	q := &fakeQueue{}
	e := newTestEngine(&fakeResolver{sub: sub}, q, log)
	e.cfg.MaxRetryAttempts = 3

	e.execute(context.Background(), models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: sub.ID, Payload: []byte(`{}`), AttemptNumber: 3})

	if len(log.rows) != 1 {
		t.Fatalf("expected one row for final attempt, got %d", len(log.rows))
	}
	row := log.rows[0]
	if row.Status != models.StatusFailure {
		t.Fatalf("expected terminal FAILURE, got %s", row.Status)
	}
	if row.ErrorDetails == nil || *row.ErrorDetails == "" {
		t.Fatalf("expected non-empty error details")
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("expected no further retry once attempts are exhausted")
	}
}

// S6 — event-type filter rejects with a terminal FAILURE and no HTTP call.
func TestExecuteEventTypeFilter(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &models.Subscription{ID: uuid.New(), TargetURL: srv.URL, IsActive: true, EventTypes: []string{"a", "b"}}
	log := &fakeLog{}
	q := &fakeQueue{}
	e := newTestEngine(&fakeResolver{sub: sub}, q, log)

	eventType := "c"
	e.execute(context.Background(), models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: sub.ID, Payload: []byte(`{}`), AttemptNumber: 1, EventType: &eventType})

	if called {
		t.Fatalf("expected no HTTP call for filtered event type")
	}
	if len(log.rows) != 1 || log.rows[0].Status != models.StatusFailure {
		t.Fatalf("expected one terminal FAILURE row, got %+v", log.rows)
	}
}

func TestExecuteSubscriptionInactive(t *testing.T) {
	sub := &models.Subscription{ID: uuid.New(), TargetURL: "http://unused", IsActive: false}
	log := &fakeLog{}
	e := newTestEngine(&fakeResolver{sub: sub}, &fakeQueue{}, log)

	e.execute(context.Background(), models.DeliveryTask{DeliveryID: uuid.New(), SubscriptionID: sub.ID, Payload: []byte(`{}`), AttemptNumber: 1})

	if len(log.rows) != 1 || log.rows[0].Status != models.StatusFailure {
		t.Fatalf("expected terminal FAILURE for inactive subscription, got %+v", log.rows)
	}
}
