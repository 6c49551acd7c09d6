package trading

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/modules/ledger"
	"github.com/aristath/ballast/internal/modules/risk"
)

// mockBroker implements domain.BrokerClient with canned responses
type mockBroker struct {
	mu sync.Mutex

	accountValue float64
	price        float64
	fillPrice    float64
	submitErr    error

	accountCalls int32
	priceCalls   int32
	submitCalls  int32
	lastOrder    domain.OrderRequest
}

func (m *mockBroker) GetAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	atomic.AddInt32(&m.accountCalls, 1)
	return &domain.BrokerAccount{AccountID: "acc1", Value: m.accountValue, Cash: m.accountValue, Currency: "USD"}, nil
}

func (m *mockBroker) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	atomic.AddInt32(&m.priceCalls, 1)
	return m.price, nil
}

func (m *mockBroker) GetPosition(ctx context.Context, symbol string) (*domain.BrokerPosition, error) {
	return nil, domain.ErrPositionNotFound
}

func (m *mockBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	atomic.AddInt32(&m.submitCalls, 1)
	m.mu.Lock()
	m.lastOrder = req
	m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	fill := m.fillPrice
	if fill == 0 {
		fill = m.price
	}
	return &domain.OrderResult{
		OrderID:   "ord-1",
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		FillPrice: fill,
	}, nil
}

func newTestService(broker *mockBroker, maxPosition float64) (*Service, *ledger.Ledger, *risk.CircuitBreaker) {
	log := zerolog.Nop()
	ledg := ledger.New(nil, log)
	breaker := risk.NewCircuitBreaker(0, log)
	guard := risk.NewGuard(ledg, breaker, maxPosition, log)
	svc := NewService(broker, ledg, guard, Config{}, log)
	return svc, ledg, breaker
}

func seedPosition(t *testing.T, ledg *ledger.Ledger, portfolioID, symbol string, qty float64) {
	t.Helper()
	key := ledg.Reserve(portfolioID, symbol, qty)
	require.NoError(t, ledg.Commit(key, qty))
}

func TestOrderToPct_BuyFills(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 50}
	svc, ledg, _ := newTestService(broker, 1000)

	outcome, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.10)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)

	// target 1000 at price 50 -> 20 shares
	assert.Equal(t, domain.SideBuy, outcome.Side)
	assert.InDelta(t, 20.0, outcome.Quantity, 0.001)
	assert.Equal(t, "ord-1", outcome.OrderID)
	assert.InDelta(t, 20.0, ledg.CurrentPosition("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 0.0, ledg.Reserved("pf1", "AAPL"), 0.001)
}

func TestOrderToPct_SellFromHolding(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 100}
	svc, ledg, _ := newTestService(broker, 1000)
	seedPosition(t, ledg, "pf1", "MSFT", 50)

	// holding is worth 5000, target is 2000 -> sell 30 shares
	outcome, err := svc.OrderToPct(context.Background(), "pf1", "MSFT", 0.20)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)

	assert.Equal(t, domain.SideSell, outcome.Side)
	assert.InDelta(t, -30.0, outcome.Quantity, 0.001)
	broker.mu.Lock()
	assert.InDelta(t, 30.0, broker.lastOrder.Quantity, 0.001)
	broker.mu.Unlock()
	assert.InDelta(t, 20.0, ledg.CurrentPosition("pf1", "MSFT"), 0.001)
}

func TestOrderToPct_DustSkipped(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 50}
	svc, _, _ := newTestService(broker, 1000)

	// diff of 1 on a 10000 account is below the 3bps dust threshold
	outcome, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.0001)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, "dust", outcome.SkipReason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.submitCalls))
}

func TestOrderToPct_NotionalGuard(t *testing.T) {
	broker := &mockBroker{accountValue: 1000000, price: 50}
	svc, ledg, breaker := newTestService(broker, 1e9)

	_, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.10)
	require.Error(t, err)

	var notionalErr *domain.NotionalGuardError
	require.ErrorAs(t, err, &notionalErr)
	assert.InDelta(t, 100000.0, notionalErr.DiffValue, 0.01)

	// Sanity guard does not trip the breaker and leaves the ledger untouched
	assert.False(t, breaker.Tripped("pf1"))
	assert.InDelta(t, 0.0, ledg.Reserved("pf1", "AAPL"), 0.001)
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.submitCalls))
}

func TestOrderToPct_PriceGuard(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 0.10}
	svc, _, breaker := newTestService(broker, 1e9)

	_, err := svc.OrderToPct(context.Background(), "pf1", "PENNY", 0.05)
	require.Error(t, err)

	var priceErr *domain.PriceGuardError
	require.ErrorAs(t, err, &priceErr)
	assert.Equal(t, "PENNY", priceErr.Symbol)
	assert.False(t, breaker.Tripped("pf1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.submitCalls))
}

func TestOrderToPct_BrokerFailureReleasesReservation(t *testing.T) {
	submitErr := errors.New("exchange rejected order")
	broker := &mockBroker{accountValue: 10000, price: 50, submitErr: submitErr}
	svc, ledg, breaker := newTestService(broker, 1000)

	_, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.10)
	require.ErrorIs(t, err, submitErr)

	// Reservation fully released, nothing filled, breaker untouched
	assert.InDelta(t, 0.0, ledg.Reserved("pf1", "AAPL"), 0.001)
	assert.InDelta(t, 0.0, ledg.CurrentPosition("pf1", "AAPL"), 0.001)
	assert.False(t, breaker.Tripped("pf1"))
}

func TestOrderToPct_OversellTripsBreaker(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 100}
	svc, ledg, breaker := newTestService(broker, 1000)
	seedPosition(t, ledg, "pf1", "MSFT", 10)

	// holding worth 1000; target 0 with a manually shrunk free float
	key := ledg.Reserve("pf1", "MSFT", -8) // in-flight sell claims 8 shares
	defer func() { _ = ledg.Cancel(key, -8) }()

	_, err := svc.OrderToPct(context.Background(), "pf1", "MSFT", 0)
	require.Error(t, err)

	var riskErr *domain.RiskViolationError
	require.ErrorAs(t, err, &riskErr)
	assert.True(t, breaker.Tripped("pf1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.submitCalls))
}

func TestOrderToPct_BreakerFailsFast(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 50}
	svc, _, breaker := newTestService(broker, 1000)
	breaker.Trip("pf1", "manual")

	_, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.10)
	require.Error(t, err)

	var openErr *domain.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "pf1", openErr.PortfolioID)

	// No broker traffic at all while the breaker is open
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.accountCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&broker.submitCalls))

	// Other portfolios are unaffected
	outcome, err := svc.OrderToPct(context.Background(), "pf2", "AAPL", 0.10)
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
}

func TestOrderToPct_PositionCapHoldsUnderConcurrency(t *testing.T) {
	const maxPosition = 100.0
	broker := &mockBroker{accountValue: 100000, price: 100}
	svc, ledg, _ := newTestService(broker, maxPosition)

	// Each call wants 80 shares; two of them together would breach the cap.
	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.OrderToPct(context.Background(), "pf1", "NVDA", 0.08)
			if err == nil && !outcome.Skipped {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	position := ledg.CurrentPosition("pf1", "NVDA")
	assert.LessOrEqual(t, position, maxPosition+0.001)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&successes), int32(1))
	assert.InDelta(t, 0.0, ledg.Reserved("pf1", "NVDA"), 0.001)
}

func TestOrderToPct_SlippageComputed(t *testing.T) {
	broker := &mockBroker{accountValue: 10000, price: 100, fillPrice: 100.5}
	svc, _, _ := newTestService(broker, 1000)

	outcome, err := svc.OrderToPct(context.Background(), "pf1", "AAPL", 0.10)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, outcome.SlippageBps, 0.01)
	assert.InDelta(t, 100.5, outcome.FillPrice, 0.001)
}
