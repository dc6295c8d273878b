package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ryanbastic/go-structdata/internal/circuitbreaker"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mutations_total",
			Help:      "Committed structured-data mutations by change type.",
		},
		[]string{"change_type"},
	)

	pluginDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plugin_deliveries_total",
			Help:      "Change notifications sent to plugins by outcome.",
		},
		[]string{"outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "plugin_breaker_state",
			Help:      "Circuit breaker state per plugin endpoint (0 closed, 1 open, 2 half-open).",
		},
		[]string{"endpoint"},
	)
)

// Changes exports mutation and plugin delivery counters. It satisfies the
// facade's change listener and the notifier's delivery recorder.
type Changes struct{}

// ChangeRecorded counts one committed history entry.
func (Changes) ChangeRecorded(_ context.Context, e storage.HistoryEntry) {
	mutationsTotal.WithLabelValues(string(e.ChangeType)).Inc()
}

// RecordDelivery counts one plugin delivery attempt.
func (Changes) RecordDelivery(outcome string) {
	pluginDeliveries.WithLabelValues(outcome).Inc()
}

// BreakerStateChanged tracks breaker transitions; pass it to
// circuitbreaker.OnStateChange.
func BreakerStateChanged(name string, _, to circuitbreaker.State) {
	breakerState.WithLabelValues(name).Set(float64(to))
}
