// Package telemetry registers the process-wide Prometheus collectors.
// Served from the /metrics endpoint of the admin HTTP listener.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts accepted query requests by protocol ("v1",
	// "v2") and endpoint ("basic", "full", "challenge", "players").
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_queries_total",
		Help: "Accepted query requests by protocol and endpoint.",
	}, []string{"protocol", "endpoint"})

	// DroppedTotal counts silently dropped datagrams by reason.
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_dropped_total",
		Help: "Datagrams dropped without a response, by reason.",
	}, []string{"reason"})

	// ResponseBytes observes the size of response datagrams.
	ResponseBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hyquery_response_bytes",
		Help:    "Size of response datagrams in bytes.",
		Buckets: []float64{64, 128, 256, 512, 1024, 1400},
	})

	// StatusPackets counts worker status updates on a primary by ACK
	// result ("ok", "unknown_id", "bad_hmac", "stale").
	StatusPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_status_packets_total",
		Help: "Worker status packets received, by ACK result.",
	}, []string{"result"})

	// PublishTotal counts coordinator publish attempts by result.
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_coordinator_publish_total",
		Help: "Coordinator status publish attempts, by result.",
	}, []string{"result"})

	// ReadTotal counts coordinator aggregate reads by result.
	ReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_coordinator_read_total",
		Help: "Coordinator aggregate reads, by result.",
	}, []string{"result"})

	// AggregateCacheEvents counts aggregate cache hits and misses.
	AggregateCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyquery_aggregate_cache_events_total",
		Help: "Aggregate cache lookups, by outcome.",
	}, []string{"outcome"})

	// StaleEvictions counts stale snapshots evicted from the store index.
	StaleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hyquery_stale_evictions_total",
		Help: "Stale snapshots evicted from the shared-store index.",
	})

	// RateLimiterSources gauges the number of tracked source addresses.
	RateLimiterSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyquery_ratelimiter_sources",
		Help: "Source addresses currently tracked by the rate limiter.",
	})
)
