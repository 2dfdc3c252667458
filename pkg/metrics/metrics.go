// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escalafin_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// InboundMessagesTotal counts webhook messages by processing outcome.
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalafin_inbound_messages_total",
			Help: "Inbound WhatsApp messages by outcome",
		},
		[]string{"outcome"},
	)

	// OutboundMessagesTotal counts provider send attempts by final status.
	OutboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalafin_outbound_messages_total",
			Help: "Outbound WhatsApp messages by category and status",
		},
		[]string{"category", "status"},
	)

	// ProviderLatency tracks WAHA call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escalafin_provider_request_duration_seconds",
			Help:    "WAHA API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RuleMatchesTotal counts chatbot rule matches.
	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalafin_chatbot_rule_matches_total",
			Help: "Chatbot rules that produced an auto-response",
		},
		[]string{"trigger_type"},
	)

	// NotificationsTotal counts dispatch decisions per category.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalafin_notifications_total",
			Help: "Notification dispatch outcomes",
		},
		[]string{"category", "outcome"},
	)

	// SweepItemsTotal counts items handled by the periodic sweep.
	SweepItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalafin_sweep_items_total",
			Help: "Items processed by the periodic sweep",
		},
		[]string{"kind", "outcome"},
	)

	// WebsocketClients tracks connected dashboard sockets.
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escalafin_websocket_clients",
			Help: "Number of connected dashboard websocket clients",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
}

// RecordOutbound records the final status of a provider send.
func RecordOutbound(category, status string) {
	OutboundMessagesTotal.WithLabelValues(category, status).Inc()
}
