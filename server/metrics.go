package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nathoo/rivecore/engine/errs"
	"github.com/nathoo/rivecore/types"
)

// Metrics holds the Prometheus collectors for served turns.
type Metrics struct {
	turnsTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	turnSeconds   prometheus.Histogram
	wsConnections prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rivecore_turns_total",
			Help: "Turns answered, by outcome.",
		}, []string{"outcome"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rivecore_turn_errors_total",
			Help: "Recoverable errors raised during turns, by kind.",
		}, []string{"kind"}),
		turnSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rivecore_turn_duration_seconds",
			Help:    "Time spent answering a turn.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rivecore_websocket_connections",
			Help: "Currently open WebSocket connections.",
		}),
	}
	reg.MustRegister(m.turnsTotal, m.errorsTotal, m.turnSeconds, m.wsConnections)
	return m
}

// observe records one finished turn.
func (m *Metrics) observe(res types.TurnResult, err error, elapsed time.Duration) {
	m.turnSeconds.Observe(elapsed.Seconds())
	switch {
	case err != nil:
		m.turnsTotal.WithLabelValues("error").Inc()
	case res.Matched:
		m.turnsTotal.WithLabelValues("matched").Inc()
	default:
		m.turnsTotal.WithLabelValues("no_match").Inc()
	}
	for _, e := range res.Errors {
		m.errorsTotal.WithLabelValues(errs.Kind(e)).Inc()
	}
}
