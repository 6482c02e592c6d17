package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusesIngestedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "status_service",
			Name:      "statuses_ingested_total",
			Help:      "Total number of status updates submitted to the pipeline.",
		},
		[]string{"result"}, // result: "success", "invalid", "error"
	)

	statusIngestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "status_service",
			Name:      "status_ingest_duration_seconds",
			Help:      "Duration of AddStatus, from validation to notification.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	natsMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "status_service",
			Name:      "nats_messages_received_total",
			Help:      "Total number of provider status messages received over NATS.",
		},
		[]string{"provider_name", "result"}, // result: "success", "rejected", "error"
	)

	notificationsForwardedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "status_service",
			Name:      "notifications_forwarded_total",
			Help:      "Total number of status notifications forwarded to the broker.",
		},
		[]string{"result"}, // result: "success", "error"
	)
)
