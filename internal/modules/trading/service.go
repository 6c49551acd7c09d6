package trading

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/modules/ledger"
	"github.com/aristath/ballast/internal/modules/risk"
)

// Default thresholds for the orchestrator's sanity guards.
const (
	DefaultMaxNotional   = 25000.0
	DefaultDustThreshold = 0.0003
	DefaultMinPrice      = 0.50
)

// Config holds the orchestrator's guard thresholds
type Config struct {
	MaxNotional   float64 // Hard cap on single-order notional value
	DustThreshold float64 // |diff| / portfolio_value below which no trade is made
	MinPrice      float64 // Latest-price floor
}

// Service composes the risk guard, reservation ledger, and broker client
// into one safe order-submission operation.
//
// The central guarantee: after OrderToPct returns or fails, the ledger's free
// float for the (portfolio, symbol) key reflects exactly the outcome - the
// committed delta on success, unchanged on failure. No reservation is ever
// left dangling, on any exit path.
type Service struct {
	brokerClient  domain.BrokerClient
	ledger        *ledger.Ledger
	guard         *risk.Guard
	maxNotional   float64
	dustThreshold float64
	minPrice      float64
	log           zerolog.Logger
}

// NewService creates the execution orchestrator. guard may be nil, in which
// case trades proceed without position validation (used by research tooling).
func NewService(
	brokerClient domain.BrokerClient,
	ledg *ledger.Ledger,
	guard *risk.Guard,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.MaxNotional <= 0 {
		cfg.MaxNotional = DefaultMaxNotional
	}
	if cfg.DustThreshold <= 0 {
		cfg.DustThreshold = DefaultDustThreshold
	}
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = DefaultMinPrice
	}
	return &Service{
		brokerClient:  brokerClient,
		ledger:        ledg,
		guard:         guard,
		maxNotional:   cfg.MaxNotional,
		dustThreshold: cfg.DustThreshold,
		minPrice:      cfg.MinPrice,
		log:           log.With().Str("service", "trading").Logger(),
	}
}

// Outcome is the result of one OrderToPct call. "Nothing to do" is a result
// variant, not an error, so the error taxonomy stays clean.
type Outcome struct {
	PortfolioID string      `json:"portfolio_id"`
	Symbol      string      `json:"symbol"`
	Skipped     bool        `json:"skipped"`
	SkipReason  string      `json:"skip_reason,omitempty"`
	OrderID     string      `json:"order_id,omitempty"`
	Side        domain.Side `json:"side,omitempty"`
	Quantity    float64     `json:"quantity,omitempty"` // signed shares
	QuotePrice  float64     `json:"quote_price,omitempty"`
	FillPrice   float64     `json:"fill_price,omitempty"`
	SlippageBps float64     `json:"slippage_bps,omitempty"`
}

func skipped(portfolioID, symbol, reason string) *Outcome {
	mtxSkipped.WithLabelValues(reason).Inc()
	return &Outcome{PortfolioID: portfolioID, Symbol: symbol, Skipped: true, SkipReason: reason}
}

// OrderToPct drives the holding of symbol in the portfolio toward
// targetFraction of total portfolio value.
//
// Guard order matters: the breaker is consulted before any broker call, the
// notional guard before any state mutation, and the risk guard before the
// reservation is made, so every fatal-guard error leaves the ledger with no
// net mutation.
func (s *Service) OrderToPct(ctx context.Context, portfolioID, symbol string, targetFraction float64) (*Outcome, error) {
	s.log.Debug().
		Str("portfolio", portfolioID).
		Str("symbol", symbol).
		Float64("target_fraction", targetFraction).
		Msg("OrderToPct")

	// Fail fast while the portfolio's breaker is open
	if s.guard != nil {
		if breaker := s.guard.Breaker(); breaker.Tripped(portfolioID) {
			mtxGuardRejections.WithLabelValues("circuit_open").Inc()
			return nil, &domain.CircuitOpenError{
				PortfolioID: portfolioID,
				Until:       breaker.TrippedUntil(portfolioID),
			}
		}
	}

	account, err := s.brokerClient.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.Value <= 0 {
		return nil, fmt.Errorf("account value %.2f is not positive", account.Value)
	}

	targetValue := account.Value * targetFraction
	currentValue, err := s.positionValue(ctx, portfolioID, symbol)
	if err != nil {
		return nil, err
	}
	diffValue := targetValue - currentValue

	// Hard brake against runaway single-order size, before any state mutation
	if math.Abs(diffValue) > s.maxNotional {
		mtxGuardRejections.WithLabelValues("notional").Inc()
		return nil, &domain.NotionalGuardError{DiffValue: diffValue, MaxNotional: s.maxNotional}
	}

	// Dust filter: rounding noise is not worth an order
	if math.Abs(diffValue)/account.Value < s.dustThreshold {
		s.log.Debug().
			Str("symbol", symbol).
			Float64("diff_value", diffValue).
			Msg("Below dust threshold, no trade")
		return skipped(portfolioID, symbol, "dust"), nil
	}

	price, err := s.brokerClient.GetLatestPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}
	if price < s.minPrice {
		mtxGuardRejections.WithLabelValues("price").Inc()
		return nil, &domain.PriceGuardError{Symbol: symbol, Price: price, MinPrice: s.minPrice}
	}

	qty := round3(diffValue / price)
	if qty == 0 {
		return skipped(portfolioID, symbol, "zero_qty"), nil
	}
	side := domain.SideForQty(qty)

	// Pre-check: plain violations trip the breaker without touching the ledger
	if s.guard != nil {
		if err := s.guard.Check(portfolioID, symbol, qty); err != nil {
			mtxGuardRejections.WithLabelValues("risk").Inc()
			return nil, err
		}
	}

	key := s.ledger.Reserve(portfolioID, symbol, qty)

	// Scoped acquisition: whatever exit path follows - broker failure, risk
	// re-validation, cancellation - the reservation resolves exactly once.
	resolved := false
	defer func() {
		if !resolved {
			if cancelErr := s.ledger.Cancel(key, qty); cancelErr != nil {
				s.log.Error().Err(cancelErr).
					Str("portfolio", portfolioID).
					Str("symbol", symbol).
					Msg("Failed to release reservation")
			}
		}
	}()

	// Re-validate against ledger state that includes our own reservation, so
	// concurrent rebalances of the same key cannot race past the limits
	if s.guard != nil {
		if err := s.guard.Recheck(portfolioID, symbol, qty); err != nil {
			mtxGuardRejections.WithLabelValues("risk").Inc()
			return nil, err
		}
	}

	result, err := s.brokerClient.SubmitOrder(ctx, domain.OrderRequest{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    math.Abs(qty),
	})
	if err != nil {
		mtxOrders.WithLabelValues(string(side), "error").Inc()
		// The deferred cancel releases the reservation; the broker error
		// propagates to the caller unchanged.
		return nil, err
	}

	committedQty := qty
	if result.Quantity > 0 {
		committedQty = math.Copysign(result.Quantity, qty)
	}
	if err := s.ledger.Commit(key, committedQty); err != nil {
		return nil, err
	}
	resolved = true

	slippageBps := 0.0
	if result.FillPrice > 0 {
		slippageBps = (result.FillPrice - price) / price * 10000
	}
	mtxOrders.WithLabelValues(string(side), "filled").Inc()
	mtxSlippage.Observe(slippageBps)

	s.log.Info().
		Str("portfolio", portfolioID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("qty", committedQty).
		Float64("quote_price", price).
		Float64("fill_price", result.FillPrice).
		Float64("slippage_bps", slippageBps).
		Str("order_id", result.OrderID).
		Msg("Order filled")

	return &Outcome{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		OrderID:     result.OrderID,
		Side:        side,
		Quantity:    committedQty,
		QuotePrice:  price,
		FillPrice:   result.FillPrice,
		SlippageBps: slippageBps,
	}, nil
}

// positionValue computes the current market value of the holding. With a
// portfolio-scoped ledger the ledger position is authoritative; without
// scoping the broker's own reported position is used instead.
func (s *Service) positionValue(ctx context.Context, portfolioID, symbol string) (float64, error) {
	if s.ledger != nil && portfolioID != "" {
		position := s.ledger.CurrentPosition(portfolioID, symbol)
		if position == 0 {
			return 0, nil
		}
		price, err := s.brokerClient.GetLatestPrice(ctx, symbol)
		if err != nil {
			return 0, fmt.Errorf("failed to price current position: %w", err)
		}
		return position * price, nil
	}

	brokerPos, err := s.brokerClient.GetPosition(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get broker position: %w", err)
	}
	return brokerPos.MarketValue, nil
}

// round3 rounds shares to exchange precision (3 decimal places).
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
