// Package metrics defines all custom Prometheus metrics for the carrier
// tracking core. It is the single source of truth for metric names, labels,
// and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracking"

// ── Carrier call metrics ──────────────────────────────────────────────────────

// CarrierCallsTotal counts outbound carrier API calls.
// Labels:
//   - carrier: carrier code (e.g. "UPS")
//   - outcome: "success", "error", "rate_limited", "circuit_open", or "mock"
var CarrierCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "carrier_calls_total",
		Help:      "Total number of outbound carrier tracking calls, by outcome.",
	},
	[]string{"carrier", "outcome"},
)

// CarrierCallDuration measures the end-to-end duration of one Track call.
var CarrierCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "carrier_call_duration_seconds",
		Help:      "Duration of outbound carrier tracking calls.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"carrier"},
)

// BreakerTransitionsTotal counts circuit breaker state transitions.
// Labels:
//   - carrier: carrier code
//   - to: resulting state ("open", "half_open", "closed")
var BreakerTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Total number of circuit breaker state transitions per carrier.",
	},
	[]string{"carrier", "to"},
)

// TokenRefreshTotal counts OAuth token refreshes per carrier.
var TokenRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of carrier OAuth token refreshes.",
	},
	[]string{"carrier"},
)

// ── Persistence metrics ───────────────────────────────────────────────────────

// EventsPersistedTotal counts tracking event rows written to the store.
var EventsPersistedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_persisted_total",
		Help:      "Total number of tracking events persisted, by carrier.",
	},
	[]string{"carrier"},
)

// EventsDedupTotal counts deduplication decisions on incoming events.
// Label:
//   - result: "hit" (duplicate, skipped) or "miss" (new event, persisted)
var EventsDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dedup_total",
		Help:      "Total number of event deduplication checks, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// ── Batch metrics ─────────────────────────────────────────────────────────────

// BatchSize observes the number of tracking numbers per batch request.
var BatchSize = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Number of tracking numbers per batch request.",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	},
)
