// Package metrics declares the opchat Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opchat_messages_relayed_total",
			Help: "Total messages recorded by the relay",
		},
		[]string{"origin"}, // "user" or "bot"
	)

	OutboundSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opchat_outbound_send_failures_total",
			Help: "Total failed deliveries to the bot transport",
		},
	)

	// Push transport metrics
	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opchat_subscribers_connected",
			Help: "Currently connected push subscribers",
		},
	)

	BroadcastsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opchat_broadcasts_emitted_total",
			Help: "Total push events emitted",
		},
		[]string{"event"},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opchat_broadcast_drops_total",
			Help: "Total push events dropped under backpressure",
		},
	)
)
