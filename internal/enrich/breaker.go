package enrich

import (
	"errors"
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker shields a data source: it opens after 3 consecutive failures or a
// >5% failure rate over at least 20 requests, and probes again after a
// minute.
type Breaker struct{ cb *cb.CircuitBreaker }

// NewBreaker creates a breaker named after its data source.
func NewBreaker(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn under the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// State returns the breaker state name for logs.
func (b *Breaker) State() string { return b.cb.State().String() }

// IsCircuitOpen reports whether err came from the breaker refusing the call
// rather than from the call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests)
}
