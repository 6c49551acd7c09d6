// Package trading implements the execution orchestrator that turns a target
// allocation fraction into a safely-reserved, rate-limited broker order.
package trading

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics updated by the orchestrator:
//   - ballast_orders_total{side,status}    – order submissions by outcome
//   - ballast_slippage_bps                 – fill price vs quote, basis points
//   - ballast_guard_rejections_total{kind} – trades stopped before submission
//   - ballast_skipped_trades_total{reason} – no-trade outcomes (dust, zero qty)
//
// Served by the HTTP server at /metrics in Prometheus text format.
var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_orders_total",
			Help: "Order submissions by side and status",
		},
		[]string{"side", "status"},
	)

	mtxSlippage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ballast_slippage_bps",
			Help:    "Fill price slippage against the quoted price, in basis points",
			Buckets: []float64{-50, -20, -10, -5, -1, 0, 1, 5, 10, 20, 50, 100},
		},
	)

	mtxGuardRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_guard_rejections_total",
			Help: "Trades stopped by a guard before submission",
		},
		[]string{"kind"}, // circuit_open | notional | price | risk
	)

	mtxSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballast_skipped_trades_total",
			Help: "No-trade outcomes by reason",
		},
		[]string{"reason"}, // dust | zero_qty
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxSlippage, mtxGuardRejections, mtxSkipped)
}
