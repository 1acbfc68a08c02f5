// Package metrics registers the process-wide Prometheus collectors shared
// by the changelog, block-checksum, scheduling-tree and drain components,
// matching the dependency the teacher carries for its own target/proxy
// stats (github.com/prometheus/client_golang).
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChangelogAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eosmetad",
		Subsystem: "changelog",
		Name:      "appends_total",
		Help:      "Number of records appended to a changelog file.",
	}, []string{"path"})

	ChecksumMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eosmetad",
		Subsystem: "blockxs",
		Name:      "checksum_mismatches_total",
		Help:      "Number of block checksum verification failures detected on read.",
	}, []string{"path"})

	SchedulingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eosmetad",
		Subsystem: "geotree",
		Name:      "scheduling_attempts_total",
		Help:      "Number of FindFreeSlot calls, partitioned by outcome.",
	}, []string{"outcome"})

	DrainScheduled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eosmetad",
		Subsystem: "drainer",
		Name:      "scheduled_transfers",
		Help:      "Cumulative transfers scheduled per draining filesystem.",
	}, []string{"fsid"})

	DrainTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eosmetad",
		Subsystem: "drainer",
		Name:      "total_transfers",
		Help:      "Total transfers discovered per draining filesystem.",
	}, []string{"fsid"})
)

// Handler exposes the default registry over /metrics for a promhttp server.
func Handler() http.Handler {
	return promhttp.Handler()
}
