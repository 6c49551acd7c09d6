package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
)

// Guard validates a proposed trade against ledger state before it is allowed
// to proceed. On violation it trips the portfolio's circuit breaker and
// returns a RiskViolationError; the ledger is never mutated here.
//
// The checks are deliberately evaluated against reservation-inclusive ledger
// state (free float and projected position), so two concurrent rebalances of
// the same symbol see each other's in-flight claims instead of racing past
// the limits.
type Guard struct {
	ledger      domain.LedgerReader
	breaker     *CircuitBreaker
	maxPosition float64
	log         zerolog.Logger
}

// NewGuard creates a position risk guard
func NewGuard(ledger domain.LedgerReader, breaker *CircuitBreaker, maxPosition float64, log zerolog.Logger) *Guard {
	return &Guard{
		ledger:      ledger,
		breaker:     breaker,
		maxPosition: maxPosition,
		log:         log.With().Str("service", "risk_guard").Logger(),
	}
}

// Breaker returns the guard's circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// MaxPosition returns the absolute per-symbol position cap.
func (g *Guard) MaxPosition() float64 {
	return g.maxPosition
}

// Check fails with a RiskViolationError when the signed quantity would either
// sell more than the key's free float covers, or push the projected position
// past the absolute cap. A violation trips the breaker before returning.
func (g *Guard) Check(portfolioID, symbol string, qty float64) error {
	if qty < 0 {
		freeFloat := g.ledger.FreeFloat(portfolioID, symbol)
		if freeFloat+qty < 0 {
			return g.violation(portfolioID, symbol, qty,
				fmt.Sprintf("sell of %.3f exceeds free float %.3f", -qty, freeFloat))
		}
	}

	projected := g.ledger.ProjectedPosition(portfolioID, symbol) + qty
	if projected > g.maxPosition || projected < -g.maxPosition {
		return g.violation(portfolioID, symbol, qty,
			fmt.Sprintf("position %.3f would exceed limit %.3f", projected, g.maxPosition))
	}

	return nil
}

// Recheck re-validates a trade after its reservation has been placed. The
// ledger's free float and projected position already include the caller's own
// claim, so unlike Check the quantity is not added a second time. A failure
// here means a concurrent reservation landed between Check and Reserve; the
// caller cancels its reservation and gives up.
func (g *Guard) Recheck(portfolioID, symbol string, qty float64) error {
	if qty < 0 {
		if freeFloat := g.ledger.FreeFloat(portfolioID, symbol); freeFloat < 0 {
			return g.violation(portfolioID, symbol, qty,
				fmt.Sprintf("free float %.3f went negative under concurrent reservations", freeFloat))
		}
	}

	projected := g.ledger.ProjectedPosition(portfolioID, symbol)
	if projected > g.maxPosition || projected < -g.maxPosition {
		return g.violation(portfolioID, symbol, qty,
			fmt.Sprintf("position %.3f would exceed limit %.3f", projected, g.maxPosition))
	}

	return nil
}

func (g *Guard) violation(portfolioID, symbol string, qty float64, reason string) error {
	g.log.Warn().
		Str("portfolio", portfolioID).
		Str("symbol", symbol).
		Float64("qty", qty).
		Str("reason", reason).
		Msg("Risk violation")

	g.breaker.Trip(portfolioID, reason)

	return &domain.RiskViolationError{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Qty:         qty,
		Reason:      reason,
	}
}
