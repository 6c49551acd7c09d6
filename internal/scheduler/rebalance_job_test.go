package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/modules/ledger"
	"github.com/aristath/ballast/internal/modules/risk"
	"github.com/aristath/ballast/internal/modules/trading"
)

type stubTargets struct {
	targets []domain.Target
	err     error
}

func (s *stubTargets) GetAll() ([]domain.Target, error) {
	return s.targets, s.err
}

type stubBroker struct {
	accountValue float64
	price        float64
	failSymbol   string // SubmitOrder fails for this symbol
	submitCalls  int32
}

func (s *stubBroker) GetAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	return &domain.BrokerAccount{AccountID: "acc1", Value: s.accountValue, Currency: "USD"}, nil
}

func (s *stubBroker) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, nil
}

func (s *stubBroker) GetPosition(ctx context.Context, symbol string) (*domain.BrokerPosition, error) {
	return nil, domain.ErrPositionNotFound
}

func (s *stubBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	atomic.AddInt32(&s.submitCalls, 1)
	if s.failSymbol != "" && req.Symbol == s.failSymbol {
		return nil, errors.New("exchange rejected order")
	}
	return &domain.OrderResult{
		OrderID:   "ord-1",
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		FillPrice: s.price,
	}, nil
}

func newRebalanceFixture(broker *stubBroker, targets []domain.Target) (*RebalanceJob, *ledger.Ledger, *risk.CircuitBreaker) {
	log := zerolog.Nop()
	ledg := ledger.New(nil, log)
	breaker := risk.NewCircuitBreaker(0, log)
	guard := risk.NewGuard(ledg, breaker, 100000, log)
	svc := trading.NewService(broker, ledg, guard, trading.Config{}, log)
	job := NewRebalanceJob(&stubTargets{targets: targets}, svc, log)
	return job, ledg, breaker
}

func TestRebalanceJobSweepsAllTargets(t *testing.T) {
	broker := &stubBroker{accountValue: 100000, price: 100}
	job, ledg, _ := newRebalanceFixture(broker, []domain.Target{
		{PortfolioID: "pf1", Symbol: "AAPL", Fraction: 0.10},
		{PortfolioID: "pf1", Symbol: "MSFT", Fraction: 0.05},
		{PortfolioID: "pf2", Symbol: "AAPL", Fraction: 0.20},
	})

	require.NoError(t, job.Run())

	assert.Equal(t, int32(3), atomic.LoadInt32(&broker.submitCalls))
	assert.InDelta(t, 100.0, ledg.CurrentPosition("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 50.0, ledg.CurrentPosition("pf1", "MSFT"), 0.001)
	assert.InDelta(t, 200.0, ledg.CurrentPosition("pf2", "AAPL"), 0.001)
}

func TestRebalanceJobOpenBreakerSkipsPortfolio(t *testing.T) {
	broker := &stubBroker{accountValue: 100000, price: 100}
	job, ledg, breaker := newRebalanceFixture(broker, []domain.Target{
		{PortfolioID: "pf1", Symbol: "AAPL", Fraction: 0.10},
		{PortfolioID: "pf2", Symbol: "AAPL", Fraction: 0.20},
	})
	breaker.Trip("pf1", "manual")

	require.NoError(t, job.Run())

	// pf1 abandoned, pf2 unaffected
	assert.InDelta(t, 0.0, ledg.CurrentPosition("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 200.0, ledg.CurrentPosition("pf2", "AAPL"), 0.001)
}

func TestRebalanceJobFailingTargetDoesNotStopSweep(t *testing.T) {
	broker := &stubBroker{accountValue: 100000, price: 100, failSymbol: "AAPL"}
	job, ledg, _ := newRebalanceFixture(broker, []domain.Target{
		{PortfolioID: "pf1", Symbol: "AAPL", Fraction: 0.10},
		{PortfolioID: "pf1", Symbol: "MSFT", Fraction: 0.05},
	})

	require.NoError(t, job.Run())

	// AAPL failed and its reservation was released; MSFT still traded
	assert.InDelta(t, 0.0, ledg.CurrentPosition("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 0.0, ledg.Reserved("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 50.0, ledg.CurrentPosition("pf1", "MSFT"), 0.001)
}

func TestRebalanceJobPropagatesProviderError(t *testing.T) {
	log := zerolog.Nop()
	providerErr := errors.New("db locked")
	job := NewRebalanceJob(&stubTargets{err: providerErr}, nil, log)

	assert.ErrorIs(t, job.Run(), providerErr)
}
