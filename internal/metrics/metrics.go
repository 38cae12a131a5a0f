// Package metrics 定义进程级的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gemini_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_chat_messages_stored_total",
			Help: "Messages inserted into the message log",
		},
		[]string{"role"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_chat_store_errors_total",
			Help: "Failed message store operations",
		},
		[]string{"op"},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_chat_gateway_requests_total",
			Help: "Inference gateway calls by variant and outcome",
		},
		[]string{"variant", "outcome"},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gemini_chat_gateway_latency_seconds",
			Help:    "Inference gateway latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"variant"},
	)

	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_chat_realtime_subscribers",
			Help: "Active realtime subscriptions on this instance",
		},
	)

	RealtimeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_chat_realtime_events_dropped_total",
			Help: "Insert events dropped because a subscriber buffer was full",
		},
	)
)
