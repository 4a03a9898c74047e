// Package metrics defines the Prometheus collectors for the voicedrop
// backend. It is the single source of truth for metric names, labels, and
// help strings. Collectors register themselves with the default registry at
// init time via promauto; the HTTP layer exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicedrop"

// HTTPRequestsTotal counts handled HTTP requests.
// Labels:
//   - method: the HTTP method
//   - path: the registered route pattern (not the raw URL)
//   - status: the numeric response status
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests handled, by route and status.",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration measures wall-clock request handling time.
// Labels:
//   - method: the HTTP method
//   - path: the registered route pattern
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP request handling.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// RegistrationsTotal counts successfully registered accounts.
var RegistrationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of accounts registered.",
	},
)

// SessionsIssuedTotal counts bearer tokens issued by signup and login.
var SessionsIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Total number of sessions issued.",
	},
)

// RecordingsCreatedTotal counts stored recordings.
// Label:
//   - transformation: the voice effect tag submitted with the recording
var RecordingsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_created_total",
		Help:      "Total number of recordings stored, by transformation.",
	},
	[]string{"transformation"},
)

// RecordingsDeletedTotal counts recipient-initiated recording deletions.
var RecordingsDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recordings_deleted_total",
		Help:      "Total number of recordings deleted by their recipient.",
	},
)

// BlobDeleteFailuresTotal counts audio blob deletions that failed after the
// database row was already gone. Each failure leaves a tombstone behind for
// the reaper to retry.
var BlobDeleteFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blob_delete_failures_total",
		Help:      "Total number of failed audio blob deletions.",
	},
)

// TombstonesReapedTotal counts orphaned audio blobs removed by the reaper.
var TombstonesReapedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tombstones_reaped_total",
		Help:      "Total number of blob tombstones cleared by the reaper.",
	},
)

// RateLimitedTotal counts requests rejected by the per-IP rate limiter.
// Label:
//   - scope: the guarded endpoint group (signup, login, upload)
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"scope"},
)
