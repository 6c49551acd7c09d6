// Package broker provides the REST client for the brokerage gateway.
//
// Every request runs inside the rate gate, so the gateway never sees more
// simultaneous requests than the gate allows. Throttling responses (HTTP 429)
// are retried with exponential backoff and are invisible to callers unless
// every attempt is exhausted; all other errors surface immediately.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/ballast/internal/domain"
	"github.com/aristath/ballast/internal/ratelimit"
)

const (
	maxAttempts    = 5
	initialBackoff = 200 * time.Millisecond
	requestTimeout = 30 * time.Second
)

// Client talks to the brokerage gateway REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	gate       *ratelimit.Gate
	log        zerolog.Logger
}

// Compile-time check that Client implements the broker capability surface.
var _ domain.BrokerClient = (*Client)(nil)

// NewClient creates a new brokerage gateway client
func NewClient(baseURL, apiKey string, gate *ratelimit.Gate, log zerolog.Logger) *Client {
	if gate == nil {
		gate = ratelimit.NewGate(ratelimit.DefaultSize)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		gate:       gate,
		log:        log.With().Str("client", "broker").Logger(),
	}
}

// GetAccount fetches the account snapshot
func (c *Client) GetAccount(ctx context.Context) (*domain.BrokerAccount, error) {
	var account domain.BrokerAccount
	if err := c.request(ctx, http.MethodGet, "/account", nil, &account); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// latestPriceResponse is the body of GET /prices/{symbol}/latest
type latestPriceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// GetLatestPrice fetches the most recent trade price for a symbol
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	var resp latestPriceResponse
	path := fmt.Sprintf("/prices/%s/latest", symbol)
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to get latest price for %s: %w", symbol, err)
	}
	return resp.Price, nil
}

// GetPosition fetches the broker's view of a position.
// Returns domain.ErrPositionNotFound when the account holds no such position.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.BrokerPosition, error) {
	var position domain.BrokerPosition
	path := fmt.Sprintf("/positions/%s", symbol)
	if err := c.request(ctx, http.MethodGet, path, nil, &position); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("position %s: %w", symbol, domain.ErrPositionNotFound)
		}
		return nil, fmt.Errorf("failed to get position for %s: %w", symbol, err)
	}
	return &position, nil
}

// SubmitOrder places an order. When the request carries no client order id,
// one is generated as {portfolio_id}-{random8hex} so retried submissions
// stay idempotent on the gateway side.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = NewClientOrderID(req.PortfolioID)
	}

	c.log.Debug().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("quantity", req.Quantity).
		Str("client_order_id", req.ClientOrderID).
		Msg("Submitting order")

	var result domain.OrderResult
	if err := c.request(ctx, http.MethodPost, "/orders", req, &result); err != nil {
		return nil, fmt.Errorf("failed to submit order for %s: %w", req.Symbol, err)
	}
	return &result, nil
}

// NewClientOrderID builds an idempotency key of the form
// {portfolio_id}-{random8hex}.
func NewClientOrderID(portfolioID string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", portfolioID, hex[:8])
}

// request executes one API call inside the rate gate, retrying throttling
// responses with exponential backoff. Non-throttling errors fail immediately.
func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.gate.Acquire(ctx); err != nil {
		return err
	}
	defer c.gate.Release()

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isThrottled(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		c.log.Warn().
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Broker throttled request, backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		backoff *= 2
	}

	return fmt.Errorf("%s %s exhausted %d attempts: %w", method, path, maxAttempts, lastErr)
}

// httpError carries a non-2xx gateway response.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("broker returned status %d: %s", e.status, e.body)
}

// statusOf extracts the HTTP status from a wrapped httpError, or 0.
func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	return 0
}

func isThrottled(err error) bool {
	return errors.Is(err, domain.ErrBrokerThrottled)
}

// doOnce executes a single HTTP round trip
func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrBrokerThrottled, newHTTPError(resp.StatusCode, respBody))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		bodyStr := string(respBody)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", bodyStr).
			Str("path", path).
			Msg("Broker returned non-2xx status")
		return newHTTPError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

func newHTTPError(status int, body []byte) *httpError {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	return &httpError{status: status, body: bodyStr}
}
