// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the gateway's Prometheus collectors, grounded on
// pkg/p2p/server.go's per-peer ack counter (serverAckCount) generalized
// to the whole control plane.
var (
	connectedPeersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moltisgw",
		Subsystem: "gateway",
		Name:      "connected_peers",
		Help:      "Number of peers currently registered with the gateway.",
	})

	dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moltisgw",
		Subsystem: "gateway",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent dispatching a method call, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	dedupeCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moltisgw",
		Subsystem: "gateway",
		Name:      "dedupe_cache_size",
		Help:      "Current number of entries in the idempotency cache.",
	})

	ticksEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moltisgw",
		Subsystem: "gateway",
		Name:      "ticks_emitted_total",
		Help:      "Number of tick events broadcast since startup.",
	})

	peersDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moltisgw",
		Subsystem: "gateway",
		Name:      "peers_dropped_total",
		Help:      "Number of peers disconnected by the gateway, by reason.",
	}, []string{"reason"})
)

// NewMetricsRegistry builds a fresh prometheus.Registry with every
// collector above registered against it. NewServer calls it once per
// Server; the collectors are package-level, so every such registry
// reports the same values.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		connectedPeersGauge,
		dispatchLatency,
		dedupeCacheSize,
		ticksEmittedTotal,
		peersDroppedTotal,
	)
	return reg
}
