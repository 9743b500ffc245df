// Package metrics exposes prometheus instrumentation for a crdtsync
// replica: gossip activity, merge outcomes, snapshot writes, and
// directory scans.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GossipRoundsTotal counts gossip rounds started (by the sync timer or
	// SyncNow), regardless of how many peers were reachable.
	GossipRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crdtsync_gossip_rounds_total",
			Help: "Total number of gossip rounds initiated by the sync timer",
		},
	)

	// GossipSendsTotal counts per-peer send attempts by outcome.
	GossipSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crdtsync_gossip_sends_total",
			Help: "Total number of per-peer gossip sends by outcome",
		},
		[]string{"peer", "outcome"},
	)

	// MergesTotal counts applied Merge() calls by whether they changed state.
	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crdtsync_merges_total",
			Help: "Total number of remote merges applied, by whether they changed local state",
		},
		[]string{"changed"},
	)

	// MergeRejectionsTotal counts envelopes that failed to decode or merge.
	MergeRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crdtsync_merge_rejections_total",
			Help: "Total number of inbound envelopes rejected during decode or merge",
		},
	)

	// ScansTotal counts lww directory scans by whether they changed state.
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crdtsync_scans_total",
			Help: "Total number of directory scans, by whether they changed state",
		},
		[]string{"changed"},
	)

	// SnapshotWritesTotal counts persisted-state writes by outcome.
	SnapshotWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crdtsync_snapshot_writes_total",
			Help: "Total number of state snapshot writes by outcome",
		},
		[]string{"outcome"},
	)

	// EnvelopeBytes observes the size of encoded gossip envelopes sent.
	EnvelopeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crdtsync_envelope_bytes",
			Help:    "Size in bytes of outbound gossip envelopes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
	)

	// ReplicaUp reports 1 while the replica's listener and timers are running.
	ReplicaUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crdtsync_replica_up",
			Help: "Whether the replica's listener and timers are running (1) or not (0)",
		},
	)

	// QuerySize samples the size of the CRDT's current Query() result
	// (element count for sets, the counter value for counters).
	QuerySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crdtsync_query_size",
			Help: "Size of the most recent local CRDT query result",
		},
	)

	// GossipRoundSeconds times a full gossip round: encode plus fan-out
	// to every configured peer.
	GossipRoundSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crdtsync_gossip_round_seconds",
			Help:    "Time to encode and fan out one gossip round",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MergeSeconds times an inbound Merge() call, by whether it changed
	// local state.
	MergeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crdtsync_merge_seconds",
			Help:    "Time to decode and merge one inbound envelope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"changed"},
	)
)

func init() {
	prometheus.MustRegister(
		GossipRoundsTotal,
		GossipSendsTotal,
		MergesTotal,
		MergeRejectionsTotal,
		ScansTotal,
		SnapshotWritesTotal,
		EnvelopeBytes,
		ReplicaUp,
		QuerySize,
		GossipRoundSeconds,
		MergeSeconds,
	)
}

// Handler returns the HTTP handler prometheus serves /metrics from.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
