package domain

import "context"

// BrokerClient defines broker-agnostic account, market-data, and order
// operations. It abstracts away broker-specific implementations so the
// orchestrator, scheduler, and tests can share one capability surface.
type BrokerClient interface {
	// GetAccount returns the account snapshot, including total portfolio value.
	GetAccount(ctx context.Context) (*BrokerAccount, error)

	// GetLatestPrice returns the most recent trade price for a symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// GetPosition returns the broker's view of the position for a symbol.
	// Returns ErrPositionNotFound when the account holds no such position.
	GetPosition(ctx context.Context, symbol string) (*BrokerPosition, error)

	// SubmitOrder places an order and returns the broker's fill summary.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// LedgerReader exposes the derived read side of the reservation ledger.
// Handlers and the risk guard depend on this instead of the concrete ledger.
type LedgerReader interface {
	// CurrentPosition returns the sum of filled quantities for the key.
	CurrentPosition(portfolioID, symbol string) float64

	// FreeFloat returns filled minus reserved quantity for the key: the
	// tradable headroom not already claimed by an in-flight sell.
	FreeFloat(portfolioID, symbol string) float64

	// ProjectedPosition returns the position the key would reach if every
	// outstanding reservation were to fill.
	ProjectedPosition(portfolioID, symbol string) float64
}

// TargetProvider supplies caller-defined target fractions. The allocation
// engine that computes these lives outside this repository; the scheduler
// only consumes its output.
type TargetProvider interface {
	GetAll() ([]Target, error)
}
