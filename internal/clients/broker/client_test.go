package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-key", ratelimit.NewGate(5), zerolog.Nop())
}

func TestGetAccount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(domain.BrokerAccount{AccountID: "acc1", Value: 100000, Cash: 25000})
	}))

	account, err := client.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100000.0, account.Value)
}

func TestGetLatestPrice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/AAPL/latest", r.URL.Path)
		json.NewEncoder(w).Encode(latestPriceResponse{Symbol: "AAPL", Price: 187.23})
	}))

	price, err := client.GetLatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.23, price)
}

func TestGetPositionNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such position", http.StatusNotFound)
	}))

	_, err := client.GetPosition(context.Background(), "TSLA")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestThrottledRequestRecoversInvisibly(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(domain.BrokerAccount{Value: 50000})
	}))

	account, err := client.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, account.Value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestThrottledRequestExhaustsRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping backoff exhaustion in short mode")
	}

	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := client.GetAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokerThrottled)
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestNonThrottlingErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.GetAccount(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrBrokerThrottled)
	assert.Equal(t, int32(1), calls.Load(), "server errors must not be retried")
}

func TestSubmitOrderGeneratesClientOrderID(t *testing.T) {
	var received domain.OrderRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(domain.OrderResult{OrderID: "ord-1", Symbol: received.Symbol, FillPrice: 101.5})
	}))

	result, err := client.SubmitOrder(context.Background(), domain.OrderRequest{
		PortfolioID: "pf1",
		Symbol:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.Regexp(t, regexp.MustCompile(`^pf1-[0-9a-f]{8}$`), received.ClientOrderID)
}

func TestNewClientOrderIDFormat(t *testing.T) {
	id := NewClientOrderID("growth")
	assert.Regexp(t, regexp.MustCompile(`^growth-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewClientOrderID("growth"))
}
