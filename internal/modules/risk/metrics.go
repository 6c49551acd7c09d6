package risk

import "github.com/prometheus/client_golang/prometheus"

// mtxBreakerTrips counts circuit breaker trips per portfolio. Exposed as
// ballast_breaker_trips_total on /metrics.
var mtxBreakerTrips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ballast_breaker_trips_total",
		Help: "Circuit breaker trips by portfolio",
	},
	[]string{"portfolio"},
)

func init() {
	prometheus.MustRegister(mtxBreakerTrips)
}
