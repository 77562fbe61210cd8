// Package metrics holds the prometheus collectors for remote calls and
// reconciliation outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "source_matcher"

// Call results.
const (
	ResultOK      = "ok"
	ResultConnect = "connect_error"
	ResultStatus  = "status_error"
)

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "call_duration_seconds",
		Help:      "Latency of calls to remote services in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"service", "result"})

	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "calls_total",
		Help:      "Total calls to remote services",
	}, []string{"service", "result"})

	// breakerState: 0 closed, 1 open, 2 half-open.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per service",
	}, []string{"service"})

	outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "outcomes_total",
		Help:      "Reconciliation requests by terminal status",
	}, []string{"status"})

	participants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "participants_total",
		Help:      "Participants processed by count kind",
	}, []string{"kind"})
)

// ObserveCall records one remote call.
func ObserveCall(service, result string, d time.Duration) {
	callDuration.WithLabelValues(service, result).Observe(d.Seconds())
	callsTotal.WithLabelValues(service, result).Inc()
}

// SetBreakerState records a breaker transition.
func SetBreakerState(service string, state int) {
	breakerState.WithLabelValues(service).Set(float64(state))
}

// RecordOutcome counts a finished request by envelope status.
func RecordOutcome(status string) {
	outcomes.WithLabelValues(status).Inc()
}

// RecordCounts adds the participant counters of a finished request.
func RecordCounts(total, verified, success, failed int) {
	participants.WithLabelValues("total").Add(float64(total))
	participants.WithLabelValues("verified").Add(float64(verified))
	participants.WithLabelValues("success").Add(float64(success))
	participants.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
