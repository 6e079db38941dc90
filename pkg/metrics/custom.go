package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchfeed",
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of publishes rejected by an open circuit breaker.",
		},
		[]string{"breaker", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchfeed",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"breaker", "state"}, // state: closed/open/half_open
	)
)

func MustRegister() {
	prometheus.MustRegister(CBRejectTotal, CBState)
}
