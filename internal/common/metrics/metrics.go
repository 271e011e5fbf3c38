// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notifications_emitted_total",
			Help: "Notifications emitted, by outcome (delivered, dropped, failed)",
		},
		[]string{"service_type", "outcome"},
	)

	PresenceConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_presence_connections",
			Help: "Users currently holding a registered live connection",
		},
	)

	ArtifactRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_artifact_requests_total",
			Help: "Artifact requests, by format and result (hit, generated, failed)",
		},
		[]string{"format", "result"},
	)

	ConversionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_conversion_attempts_total",
			Help: "PDF to JPEG conversion attempts, by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_render_duration_seconds",
			Help:    "Duration of PDF rendering in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
