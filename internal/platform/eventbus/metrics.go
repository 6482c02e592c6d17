package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "events_published_total",
			Help:      "Total number of events published, by kind and outcome.",
		},
		[]string{"kind", "result"}, // result: "dispatched", "no_subscribers", "rejected"
	)

	handlerFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "handler_failures_total",
			Help:      "Total number of handler invocations that failed.",
		},
		[]string{"kind", "subscriber", "reason"}, // reason: "error", "panic", "timeout"
	)

	deliveriesDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "deliveries_dropped_total",
			Help:      "Total number of deliveries dropped because a subscriber queue stayed full or was stopped.",
		},
		[]string{"kind", "subscriber"},
	)

	handlerDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventbus",
			Name:      "handler_duration_seconds",
			Help:      "Duration of handler invocations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "subscriber"},
	)
)
