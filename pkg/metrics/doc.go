/*
Package metrics provides Prometheus metrics collection and exposition for a
crdtsync replica.

All metrics are registered at package init against the default Prometheus
registry and exposed via Handler() on an optional HTTP /metrics endpoint.

# Metrics Catalog

crdtsync_gossip_rounds_total:
  - Type: Counter
  - Description: Total gossip rounds initiated by this replica

crdtsync_gossip_sends_total{peer, outcome}:
  - Type: CounterVec
  - Description: Gossip sends per configured peer, outcome is "ok" or "error"

crdtsync_merges_total{changed}:
  - Type: CounterVec
  - Description: Remote merges applied, changed is "changed" or "unchanged"

crdtsync_merge_rejections_total:
  - Type: Counter
  - Description: Envelopes that failed to decode or merge

crdtsync_scans_total{changed}:
  - Type: CounterVec
  - Description: LWW directory scans, changed is "changed" or "unchanged"

crdtsync_snapshot_writes_total{outcome}:
  - Type: CounterVec
  - Description: State-file snapshot writes, outcome is "ok" or "error"

crdtsync_envelope_bytes:
  - Type: Histogram
  - Description: Size in bytes of each gossip envelope sent

crdtsync_replica_up:
  - Type: Gauge
  - Description: 1 while the replica's listener and timers are running, 0 otherwise

crdtsync_query_size:
  - Type: Gauge
  - Description: Size of the last Query() result, sampled by Collector

crdtsync_gossip_round_seconds:
  - Type: Histogram
  - Description: Time to encode and fan out one gossip round

crdtsync_merge_seconds{changed}:
  - Type: HistogramVec
  - Description: Time to decode and merge one inbound envelope, changed is "changed" or "unchanged"

# Usage

	metrics.GossipRoundsTotal.Inc()
	metrics.EnvelopeBytes.Observe(float64(len(data)))
	metrics.MergesTotal.WithLabelValues("changed").Inc()

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)
*/
package metrics
