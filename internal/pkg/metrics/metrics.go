// Package metrics defines and registers all custom Prometheus metrics for the
// fleet bot. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleetbot"

// ── Update metrics ────────────────────────────────────────────────────────────

// UpdatesTotal counts inbound chat updates by kind.
// Label:
//   - kind: "command", "text" or "callback"
var UpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Total number of inbound chat updates, by kind.",
	},
	[]string{"kind"},
)

// UpdatesDedupTotal counts deduplication decisions on update ids.
// Label:
//   - result: "hit" (already seen, skipped) or "miss"
var UpdatesDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_dedup_total",
		Help:      "Total number of update deduplication checks, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// UpdatesQueueDepth tracks the number of updates waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index
var UpdatesQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "updates_queue_depth",
		Help:      "Current number of updates pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// UpdateProcessingDuration measures handling time of a single update.
// Label:
//   - outcome: "ok" or "error"
var UpdateProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "update_processing_duration_seconds",
		Help:      "Duration of update handling from dequeue to last reply.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// ── Access metrics ────────────────────────────────────────────────────────────

// GateDecisionsTotal counts capability checks at the command gate.
// Labels:
//   - required: "none", "user" or "moderator"
//   - result: "allow" or "deny"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of access gate decisions.",
	},
	[]string{"required", "result"},
)

// GateReloadsTotal counts access snapshot reloads.
// Label:
//   - result: "ok" or "error"
var GateReloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_reloads_total",
		Help:      "Total number of access snapshot reloads.",
	},
	[]string{"result"},
)

// ── Credential metrics ────────────────────────────────────────────────────────

// EnrollmentAttemptsTotal counts enrollment code redemptions.
// Label:
//   - result: "accepted", "rejected", "locked" or "error"
var EnrollmentAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollment_attempts_total",
		Help:      "Total number of enrollment code redemptions, by result.",
	},
	[]string{"result"},
)

// LockoutsTotal counts principals blocked after repeated failures.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of principals blocked by the lockout tracker.",
	},
)

// ConfirmationsTotal counts destructive-action confirmations.
// Labels:
//   - scope: "user" or "moderator"
//   - result: "confirmed" or "rejected"
var ConfirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Total number of TOTP confirmations of privileged actions.",
	},
	[]string{"scope", "result"},
)

// DialogsExpiredTotal counts dialogs dropped after the idle timeout.
var DialogsExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dialogs_expired_total",
		Help:      "Total number of dialogs discarded for inactivity.",
	},
)

// ── Provider metrics ──────────────────────────────────────────────────────────

// ProviderRequestsTotal counts cloud provider API calls.
// Labels:
//   - op: "status", "poweron", "shutdown" or "reboot"
//   - code: HTTP status code, or "error" for transport failures
var ProviderRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total number of cloud provider API requests.",
	},
	[]string{"op", "code"},
)

// ProviderRequestDuration measures cloud provider API latency.
var ProviderRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of cloud provider API requests.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)
