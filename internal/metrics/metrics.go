// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mindwell_relay_active_sessions",
		Help: "Relay sessions currently open",
	})
	RelaySessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_relay_sessions_total",
		Help: "Relay sessions by terminal outcome",
	}, []string{"outcome"})
	RelayFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_relay_frames_total",
		Help: "Frames forwarded by direction and frame type",
	}, []string{"direction", "type"})
	RelayBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_relay_bytes_total",
		Help: "Payload bytes forwarded by direction",
	}, []string{"direction"})
	RelayUpstreamDialSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mindwell_relay_upstream_dial_seconds",
		Help:    "Time to open the upstream realtime socket",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	RelayRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_relay_rejected_total",
		Help: "Upgrade requests rejected before any socket work",
	}, []string{"reason"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_api_requests_total",
		Help: "REST proxy requests by route and status",
	}, []string{"route", "status"})
	APIRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindwell_api_request_seconds",
		Help:    "REST proxy latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindwell_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
	VendorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindwell_vendor_errors_total",
		Help: "Failed vendor calls by vendor",
	}, []string{"vendor"})
)
