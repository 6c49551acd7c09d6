package domain

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideForQty derives the order side from a signed quantity.
func SideForQty(qty float64) Side {
	if qty > 0 {
		return SideBuy
	}
	return SideSell
}

// BrokerAccount is the broker's account snapshot.
type BrokerAccount struct {
	AccountID string  `json:"account_id"`
	Value     float64 `json:"value"`
	Cash      float64 `json:"cash"`
	Currency  string  `json:"currency"`
}

// BrokerPosition is the broker's view of a single holding.
type BrokerPosition struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	AvgPrice    float64 `json:"avg_price"`
	MarketValue float64 `json:"market_value"`
}

// OrderRequest describes one order submission. It is an ephemeral value
// passed through the orchestrator and never persisted by the core.
type OrderRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	PortfolioID   string  `json:"portfolio_id"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"` // absolute shares
}

// OrderResult is the broker's fill summary for a submitted order.
type OrderResult struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Quantity  float64 `json:"quantity"`
	FillPrice float64 `json:"fill_price"`
}

// Target is one caller-supplied allocation target: drive the holding of
// Symbol in PortfolioID toward Fraction of total portfolio value.
type Target struct {
	PortfolioID string  `json:"portfolio_id"`
	Symbol      string  `json:"symbol"`
	Fraction    float64 `json:"fraction"`
}
