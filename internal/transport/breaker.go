package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("upstream circuit open")

// errServerStatus marks a 5xx response as a failure for the breaker while the
// response itself is still returned to the caller.
var errServerStatus = errors.New("upstream server error")

// BreakerSettings tunes the circuit breaker.
type BreakerSettings struct {
	Name string

	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings returns settings suited to the Storefront API.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "storefront",
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
	}
}

// BreakerTransport fails fast while the upstream keeps failing.
// Transport errors and 5xx responses count as failures; 4xx responses are the
// caller's problem and count as successes.
type BreakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreakerTransport wraps next in a circuit breaker.
func NewBreakerTransport(next http.RoundTripper, s BreakerSettings, logger *slog.Logger) *BreakerTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	if s.Name == "" {
		s.Name = "upstream"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerTransport{next: next, cb: cb}
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, errServerStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrCircuitOpen
	}
	return resp, err
}

// State reports the breaker state, e.g. "closed" or "open".
func (t *BreakerTransport) State() string {
	return t.cb.State().String()
}
