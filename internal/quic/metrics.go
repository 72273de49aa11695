// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters and gauges the loss detector exports, in the
// style distribution and grafana-k6 register prometheus collectors: built
// once, labelled at each call site. A nil *Metrics is valid everywhere
// below and simply does nothing, so callers that don't care about metrics
// never need a conditional.
type Metrics struct {
	packetsAcked     *prometheus.CounterVec
	packetsLost      *prometheus.CounterVec
	ptoFired         prometheus.Counter
	cryptoRetransmit prometheus.Counter
	smoothedRTTMS    prometheus.Gauge
}

// NewMetrics constructs a Metrics bundle and registers it with reg. Pass a
// fresh *prometheus.Registry in tests to avoid collisions with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quicloss",
			Name:      "packets_acked_total",
			Help:      "Packets newly acknowledged, by packet number space.",
		}, []string{"space"}),
		packetsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quicloss",
			Name:      "packets_lost_total",
			Help:      "Packets declared lost, by packet number space.",
		}, []string{"space"}),
		ptoFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quicloss",
			Name:      "pto_fired_total",
			Help:      "Number of times the PTO alarm fired.",
		}),
		cryptoRetransmit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quicloss",
			Name:      "crypto_retransmissions_total",
			Help:      "Number of handshake-RTO-driven crypto retransmissions.",
		}),
		smoothedRTTMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quicloss",
			Name:      "smoothed_rtt_ms",
			Help:      "Current smoothed RTT estimate, in milliseconds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packetsAcked, m.packetsLost, m.ptoFired, m.cryptoRetransmit, m.smoothedRTTMS)
	}
	return m
}

func (m *Metrics) ackedPacket(s NumberSpace) {
	if m == nil {
		return
	}
	m.packetsAcked.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) lostPackets(s NumberSpace, n int) {
	if m == nil || n == 0 {
		return
	}
	m.packetsLost.WithLabelValues(s.String()).Add(float64(n))
}

func (m *Metrics) ptoFire() {
	if m == nil {
		return
	}
	m.ptoFired.Inc()
}

func (m *Metrics) cryptoRetransmission() {
	if m == nil {
		return
	}
	m.cryptoRetransmit.Inc()
}

func (m *Metrics) setSmoothedRTT(ms uint64) {
	if m == nil {
		return
	}
	m.smoothedRTTMS.Set(float64(ms))
}
