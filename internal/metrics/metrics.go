// Package metrics holds the Prometheus collectors for the scheduler and the
// delivery path. Collectors register on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_armed_timers",
		Help: "Number of post timers currently armed in memory.",
	})

	TimersArmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_arm_total",
		Help: "Number of arm calls that persisted a timer.",
	})

	DispatchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_dispatch_errors_total",
		Help: "Matured timers that could not be handed to the worker pool and were re-armed.",
	})

	FiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_fires_total",
		Help: "Fire executions by result (handled, stale, error, panic).",
	}, []string{"result"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_duration_seconds",
		Help:    "Time spent in one delivery attempt including media upload.",
		Buckets: prometheus.DefBuckets,
	})
)
