// Package metrics holds the prometheus collectors of the chat server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesDelivered counts frames queued on a live connection, per event.
	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eckchat_frames_delivered_total",
			Help: "Frames queued for delivery to a live connection",
		},
		[]string{"event"},
	)

	// FramesDropped counts frames that could not be queued because the
	// connection was closed or its buffer was full.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eckchat_frames_dropped_total",
			Help: "Frames dropped for closed or saturated connections",
		},
		[]string{"event"},
	)

	// Connections tracks live transport connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eckchat_connections",
		Help: "Live websocket connections",
	})

	// OnlineIdentities tracks identities with at least one bound connection.
	OnlineIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eckchat_online_identities",
		Help: "Identities with at least one bound connection",
	})

	// StoreLatency records persistence gateway latency per operation.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eckchat_store_operation_seconds",
			Help:    "Persistence gateway operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// InboundEvents counts client frames by event and outcome kind.
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eckchat_inbound_events_total",
			Help: "Client events handled, by result kind",
		},
		[]string{"event", "result"},
	)

	// CacheLookups counts chat-list cache lookups by result (hit|miss|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eckchat_chat_list_cache_lookups_total",
			Help: "Chat-list cache lookups",
		},
		[]string{"result"},
	)
)

// ObserveStore records the latency of op since start.
func ObserveStore(op string, start time.Time) {
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
