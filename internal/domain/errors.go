package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions that carry no extra data.
var (
	// ErrPositionNotFound is returned by BrokerClient.GetPosition when the
	// account holds no position in the requested symbol.
	ErrPositionNotFound = errors.New("position not found")

	// ErrBrokerThrottled marks a throttling (HTTP 429) response. The broker
	// client recovers from it locally with backoff; callers only see it when
	// every retry attempt has been exhausted.
	ErrBrokerThrottled = errors.New("broker throttled request")

	// ErrLedgerInconsistency marks a reserve/commit/cancel pairing violation.
	// It should never occur under correct use; it is surfaced, logged, and
	// never auto-corrected.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
)

// NotionalGuardError is returned when a computed order exceeds the hard cap
// on single-order size. Fatal for the call, never retried.
type NotionalGuardError struct {
	DiffValue   float64
	MaxNotional float64
}

func (e *NotionalGuardError) Error() string {
	return fmt.Sprintf("order notional %.2f exceeds limit %.2f", e.DiffValue, e.MaxNotional)
}

// PriceGuardError is returned when the latest price fails the bad-tick /
// penny-stock floor. Fatal, data-quality issue, never retried.
type PriceGuardError struct {
	Symbol   string
	Price    float64
	MinPrice float64
}

func (e *PriceGuardError) Error() string {
	return fmt.Sprintf("price %.4f for %s below floor %.2f", e.Price, e.Symbol, e.MinPrice)
}

// RiskViolationError is returned by the position risk guard. Raising it trips
// the portfolio's circuit breaker; the ledger is left with no net mutation.
type RiskViolationError struct {
	PortfolioID string
	Symbol      string
	Qty         float64
	Reason      string
}

func (e *RiskViolationError) Error() string {
	return fmt.Sprintf("risk violation for %s/%s qty %.3f: %s", e.PortfolioID, e.Symbol, e.Qty, e.Reason)
}

// CircuitOpenError is returned when a trade is attempted for a portfolio
// whose circuit breaker is tripped.
type CircuitOpenError struct {
	PortfolioID string
	Until       time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for portfolio %s until %s", e.PortfolioID, e.Until.Format(time.RFC3339))
}
