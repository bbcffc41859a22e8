// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package metrics defines the Prometheus instrumentation for the service.
// All collectors are registered on the default registry via promauto and
// exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks API handler latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cratedig",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route, method and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	// DiscogsRequests counts upstream API calls by endpoint and outcome.
	// Outcomes: ok, rate_limited, not_found, bad_request, upstream_error,
	// transport_error.
	DiscogsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cratedig",
		Subsystem: "discogs",
		Name:      "requests_total",
		Help:      "Upstream Discogs API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// DiscogsRetries counts retry attempts by endpoint.
	DiscogsRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cratedig",
		Subsystem: "discogs",
		Name:      "retries_total",
		Help:      "Retry attempts against the Discogs API by endpoint.",
	}, []string{"endpoint"})

	// RateLimiterWaitSeconds observes how long requests waited on the pacer.
	RateLimiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cratedig",
		Subsystem: "discogs",
		Name:      "rate_limiter_wait_seconds",
		Help:      "Time requests spent blocked in the client-side rate limiter.",
		Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
	})

	// SyncJobs counts sync jobs by terminal status.
	SyncJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cratedig",
		Subsystem: "sync",
		Name:      "jobs_total",
		Help:      "Sync jobs by terminal status.",
	}, []string{"status"})

	// SyncActive gauges the number of currently running sync jobs.
	SyncActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cratedig",
		Subsystem: "sync",
		Name:      "active_jobs",
		Help:      "Number of sync jobs currently running.",
	})

	// ReleasesEnriched counts releases fetched and scored during enrichment.
	ReleasesEnriched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cratedig",
		Subsystem: "sync",
		Name:      "releases_enriched_total",
		Help:      "Releases enriched with full detail during sync runs.",
	})

	// EnrichmentSkips counts per-item enrichment failures that were skipped.
	EnrichmentSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cratedig",
		Subsystem: "sync",
		Name:      "enrichment_skips_total",
		Help:      "Releases skipped during enrichment after a fetch failure.",
	})

	// BreakerState gauges the circuit breaker state (0 closed, 1 half-open,
	// 2 open).
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cratedig",
		Subsystem: "discogs",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})

	// WebsocketClients gauges connected progress subscribers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cratedig",
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Currently connected websocket clients.",
	})
)
