package delivery

import (
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// hostBreakers lazily creates one circuit breaker per target host, grounded
// on the per-provider breaker in the classification orchestrator this
// service generalizes from. A trip turns an outbound POST into a fast
// "network error" classification instead of waiting out the full
// WEBHOOK_TIMEOUT; it never changes whether an attempt is classified a
// success or failure, only how quickly a doomed attempt fails.
type hostBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func newHostBreakers(logger *zap.Logger) *hostBreakers {
	return &hostBreakers{breakers: make(map[string]*gobreaker.CircuitBreaker), logger: logger}
}

func (h *hostBreakers) forTarget(targetURL string) *gobreaker.CircuitBreaker {
	host := targetURL
	if parsed, err := url.Parse(targetURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.breakers[host]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook-target-" + host,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			h.logger.Warn("delivery circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	h.breakers[host] = b
	return b
}
