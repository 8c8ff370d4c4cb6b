package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keyrace"

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Number of live websocket connections.",
	})

	ActiveParties = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_parties",
		Help:      "Number of parties currently registered.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "State-mutating events applied across all parties.",
	})

	RoundsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_finished_total",
		Help:      "Rounds driven to the finished phase by timer expiry.",
	})
)
