// Package risk provides pre-trade position validation and the per-portfolio
// circuit breaker that locks a portfolio out of trading after a violation.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCooldown is the lockout duration after a trip.
const DefaultCooldown = 30 * time.Minute

// breakerState is the trip state for one portfolio.
type breakerState struct {
	trippedAt time.Time
	reason    string
}

// CircuitBreaker holds per-portfolio trip/cooldown state. Portfolios are
// independent: tripping one never affects another. Reading Tripped is a pure
// time comparison with no side effects.
type CircuitBreaker struct {
	mu       sync.RWMutex
	states   map[string]breakerState
	cooldown time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewCircuitBreaker creates a breaker with the given cooldown. A zero or
// negative cooldown falls back to DefaultCooldown.
func NewCircuitBreaker(cooldown time.Duration, log zerolog.Logger) *CircuitBreaker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		states:   make(map[string]breakerState),
		cooldown: cooldown,
		now:      time.Now,
		log:      log.With().Str("component", "circuit_breaker").Logger(),
	}
}

// Trip locks the portfolio out of trading for the cooldown duration.
func (b *CircuitBreaker) Trip(portfolioID, reason string) {
	b.mu.Lock()
	b.states[portfolioID] = breakerState{trippedAt: b.now(), reason: reason}
	b.mu.Unlock()

	mtxBreakerTrips.WithLabelValues(portfolioID).Inc()

	b.log.Warn().
		Str("portfolio", portfolioID).
		Str("reason", reason).
		Dur("cooldown", b.cooldown).
		Msg("Circuit breaker tripped")
}

// Tripped reports whether the portfolio is currently locked out.
func (b *CircuitBreaker) Tripped(portfolioID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[portfolioID]
	if !ok || state.trippedAt.IsZero() {
		return false
	}
	return b.now().Before(state.trippedAt.Add(b.cooldown))
}

// TrippedUntil returns the end of the lockout window, or the zero time when
// the portfolio is not tripped.
func (b *CircuitBreaker) TrippedUntil(portfolioID string) time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[portfolioID]
	if !ok || state.trippedAt.IsZero() {
		return time.Time{}
	}
	until := state.trippedAt.Add(b.cooldown)
	if !b.now().Before(until) {
		return time.Time{}
	}
	return until
}

// Reset clears the portfolio's trip state before the cooldown elapses.
func (b *CircuitBreaker) Reset(portfolioID string) {
	b.mu.Lock()
	delete(b.states, portfolioID)
	b.mu.Unlock()

	b.log.Info().Str("portfolio", portfolioID).Msg("Circuit breaker reset")
}

// Status describes the breaker state of one portfolio for observability.
type Status struct {
	PortfolioID string     `json:"portfolio_id"`
	Tripped     bool       `json:"tripped"`
	Reason      string     `json:"reason,omitempty"`
	TrippedAt   *time.Time `json:"tripped_at,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
}

// StatusFor returns the breaker status for one portfolio.
func (b *CircuitBreaker) StatusFor(portfolioID string) Status {
	b.mu.RLock()
	state, ok := b.states[portfolioID]
	b.mu.RUnlock()

	status := Status{PortfolioID: portfolioID}
	if !ok || state.trippedAt.IsZero() {
		return status
	}

	until := state.trippedAt.Add(b.cooldown)
	if b.now().Before(until) {
		trippedAt := state.trippedAt
		status.Tripped = true
		status.Reason = state.reason
		status.TrippedAt = &trippedAt
		status.Until = &until
	}
	return status
}
