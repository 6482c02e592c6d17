package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "active_sessions",
			Help:      "Number of connected realtime sessions.",
		},
		[]string{"transport"}, // transport: "websocket", "sse", "other"
	)

	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "messages_sent_total",
			Help:      "Total number of per-session sends, by kind and outcome.",
		},
		[]string{"kind", "result"}, // result: "delivered", "failed"
	)

	broadcastDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "realtime",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of a broadcast across all matching sessions.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
