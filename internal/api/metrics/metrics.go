// Package metrics defines the custom Prometheus metrics of the commission API.
// It is the single source of truth for metric names, labels, and help strings.
// All metrics register with the default registry on package init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commissions"

// ── Work metrics ──────────────────────────────────────────────────────────────

// WorksCreatedTotal counts create calls.
// Label:
//   - result: "created", "replayed" (idempotent hit) or "rejected"
var WorksCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "works_created_total",
		Help:      "Total number of work creation attempts, by result.",
	},
	[]string{"result"},
)

// WorkTransitionsTotal counts lifecycle transition attempts.
// Labels:
//   - status: the target status (e.g. "delivered")
//   - result: "ok", "invalid", "conflict" or "error"
var WorkTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "work_transitions_total",
		Help:      "Total number of work status transition attempts.",
	},
	[]string{"status", "result"},
)

// ── Deliverable metrics ───────────────────────────────────────────────────────

// DeliverableUploadBytes observes the size of uploaded deliverables.
var DeliverableUploadBytes = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "deliverable_upload_bytes",
		Help:      "Size of uploaded deliverable files.",
		Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8), // 64KiB … 1GiB
	},
)

// DownloadLinksIssuedTotal counts presigned links handed out.
// Label:
//   - window: "delivery" (returned by the deliver call) or "download"
var DownloadLinksIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_links_issued_total",
		Help:      "Total number of presigned deliverable links issued.",
	},
	[]string{"window"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsReadTotal counts notifications marked as read.
var NotificationsReadTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_read_total",
		Help:      "Total number of notifications acknowledged by their recipient.",
	},
)
