// Package obs exposes decisioncore's live-engine Prometheus metrics,
// grounded on chidi150c-coinbase/metrics.go's package-level
// prometheus.NewCounterVec/NewGauge + init() registration pattern.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisioncore_decisions_total",
			Help: "Playbook transitions evaluated, by phase transition name.",
		},
		[]string{"playbook", "transition"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisioncore_trades_total",
			Help: "Trades closed, by outcome (win|loss|breakeven).",
		},
		[]string{"playbook", "outcome"},
	)

	circuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisioncore_circuit_breaker_trips_total",
			Help: "Circuit breaker trips, by playbook.",
		},
		[]string{"playbook"},
	)

	bridgeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decisioncore_bridge_call_duration_seconds",
			Help:    "Broker bridge round-trip latency by command.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	equityGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "decisioncore_equity",
			Help: "Current account equity snapshot.",
		},
		[]string{"playbook"},
	)

	riskBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisioncore_risk_blocks_total",
			Help: "Risk gate decisions that were not approved, by action.",
		},
		[]string{"playbook", "action"},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal, tradesTotal, circuitBreakerTrips)
	prometheus.MustRegister(bridgeLatency, equityGauge, riskBlocksTotal)
}

// RecordTransition increments the decision counter for a playbook transition.
func RecordTransition(playbook, transition string) {
	decisionsTotal.WithLabelValues(playbook, transition).Inc()
}

// RecordTrade increments the trade-outcome counter.
func RecordTrade(playbook, outcome string) {
	tradesTotal.WithLabelValues(playbook, outcome).Inc()
}

// RecordCircuitBreakerTrip increments the circuit-breaker trip counter.
func RecordCircuitBreakerTrip(playbook string) {
	circuitBreakerTrips.WithLabelValues(playbook).Inc()
}

// ObserveBridgeLatency records a bridge call's round-trip duration in seconds.
func ObserveBridgeLatency(command string, seconds float64) {
	bridgeLatency.WithLabelValues(command).Observe(seconds)
}

// SetEquity updates the equity gauge for a playbook.
func SetEquity(playbook string, equity float64) {
	equityGauge.WithLabelValues(playbook).Set(equity)
}

// RecordRiskBlock increments the risk-block counter for a non-pass decision.
func RecordRiskBlock(playbook, action string) {
	riskBlocksTotal.WithLabelValues(playbook, action).Inc()
}

// Handler returns the /metrics HTTP handler for the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
