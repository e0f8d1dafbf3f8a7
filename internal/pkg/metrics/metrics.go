// Package metrics defines and registers all custom Prometheus metrics for the
// contacts API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation and exposed through GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contacts"

// ── Contact metrics ───────────────────────────────────────────────────────────

// ContactsCreatedTotal counts newly created contacts.
// Label:
//   - contact_type: "personal", "home", or "work"
var ContactsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "created_total",
		Help:      "Total number of contacts created, by contact type.",
	},
	[]string{"contact_type"},
)

// ContactsDeletedTotal counts deleted contacts.
var ContactsDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deleted_total",
		Help:      "Total number of contacts deleted.",
	},
)

// ── Photo metrics ─────────────────────────────────────────────────────────────

// PhotoUploadsTotal counts blob sink writes.
// Labels:
//   - backend: "local" or "s3"
//   - result: "ok" or "error"
var PhotoUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "photo_uploads_total",
		Help:      "Total number of photo uploads, by backend and result.",
	},
	[]string{"backend", "result"},
)

// PhotoCleanupTotal counts processed cleanup jobs.
// Label:
//   - result: "ok" or "error"
var PhotoCleanupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "photo_cleanup_total",
		Help:      "Total number of superseded photos removed from the blob sink, by result.",
	},
	[]string{"result"},
)

// PhotoCleanupQueueDepth tracks the number of jobs waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var PhotoCleanupQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "photo_cleanup_queue_depth",
		Help:      "Current number of cleanup jobs pending in each worker channel.",
	},
	[]string{"worker_id"},
)

// ── Limits ────────────────────────────────────────────────────────────────────

// RateLimitedTotal counts requests rejected by the rate limiter.
var RateLimitedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected with 429.",
	},
)
