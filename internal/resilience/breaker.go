package resilience

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	apperrors "github.com/claimlens/backend/pkg/errors"
)

// Breaker gates calls to one failing backend. After failureThreshold
// consecutive failures the circuit opens and calls are rejected without
// being attempted; after recoveryTimeout one trial call is let through,
// closing the circuit (and resetting the failure count) on success or
// re-opening it on failure.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker for the named backend.
func NewBreaker(name string, failureThreshold uint32, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one trial call while half-open
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("backend", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. Rejections while the circuit is
// open (or beyond the half-open trial budget) surface as circuit-open
// errors and are not counted as new failures.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewCircuitOpenError(b.name)
	}
	return err
}

// State returns the current circuit state name (closed, half-open, open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}
