// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the node's operator-visible counters — the
// diagnostic frame statistics and the radio error register — as
// Prometheus metrics, plus the HTTP server that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter and gauge the node publishes.
type Metrics struct {
	TxTotal         prometheus.Counter
	RxTotal         prometheus.Counter
	CRCErrorsTotal  prometheus.Counter
	TimeoutsTotal   prometheus.Counter
	OKFramesTotal   prometheus.Counter
	DroppedTotal    prometheus.Counter
	DuplicatesTotal prometheus.Counter
	BeaconsTotal    prometheus.Counter
	RepeatedTotal   prometheus.Counter

	RadioErrorsTotal *prometheus.CounterVec
	MeshEntries      prometheus.Gauge
	LastRSSI         prometheus.Gauge
}

// NewMetrics constructs and registers every metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		TxTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_tx_frames_total",
			Help: "Total frames transmitted.",
		}),
		RxTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_rx_frames_total",
			Help: "Total frames received.",
		}),
		CRCErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_crc_errors_total",
			Help: "Total CRC errors reported by the radio.",
		}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_timeouts_total",
			Help: "Total receive timeouts reported by the radio.",
		}),
		OKFramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_ok_frames_total",
			Help: "Total frames dispatched successfully.",
		}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_dropped_frames_total",
			Help: "Total frames dropped (self-originated, unparseable, or unknown coding).",
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_duplicate_frames_total",
			Help: "Total frames rejected as duplicates by the mesh table.",
		}),
		BeaconsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_beacons_total",
			Help: "Total beacon frames processed.",
		}),
		RepeatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ip400_repeated_frames_total",
			Help: "Total frames repeated.",
		}),
		RadioErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ip400_radio_errors_total",
			Help: "Radio errors by kind (crc, timeout, pll, vco, sequencer).",
		}, []string{"kind"}),
		MeshEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ip400_mesh_entries",
			Help: "Current non-unused mesh table entry count.",
		}),
		LastRSSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ip400_last_rssi_dbm",
			Help: "Most recently recorded RSSI in dBm.",
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	prometheus.MustRegister(
		m.TxTotal,
		m.RxTotal,
		m.CRCErrorsTotal,
		m.TimeoutsTotal,
		m.OKFramesTotal,
		m.DroppedTotal,
		m.DuplicatesTotal,
		m.BeaconsTotal,
		m.RepeatedTotal,
		m.RadioErrorsTotal,
		m.MeshEntries,
		m.LastRSSI,
	)
}

// Sample is one reading of the radio engine and dispatcher's atomic
// counters. Counters are monotonic, so Observe adds the delta between two
// samples to the Prometheus series.
type Sample struct {
	Tx, Rx, CRCErrors, Timeouts, OKFrames, Dropped, Duplicates, Beacons, Repeated int64
	PLLErrors, VCOErrors, SequencerErrors                                         int64
}

// Observe adds the delta between prev and cur to each counter. It returns
// nothing; the caller keeps cur as the next prev.
func (m *Metrics) Observe(prev, cur Sample) {
	m.TxTotal.Add(float64(cur.Tx - prev.Tx))
	m.RxTotal.Add(float64(cur.Rx - prev.Rx))
	m.CRCErrorsTotal.Add(float64(cur.CRCErrors - prev.CRCErrors))
	m.TimeoutsTotal.Add(float64(cur.Timeouts - prev.Timeouts))
	m.OKFramesTotal.Add(float64(cur.OKFrames - prev.OKFrames))
	m.DroppedTotal.Add(float64(cur.Dropped - prev.Dropped))
	m.DuplicatesTotal.Add(float64(cur.Duplicates - prev.Duplicates))
	m.BeaconsTotal.Add(float64(cur.Beacons - prev.Beacons))
	m.RepeatedTotal.Add(float64(cur.Repeated - prev.Repeated))

	m.RadioErrorsTotal.WithLabelValues("crc").Add(float64(cur.CRCErrors - prev.CRCErrors))
	m.RadioErrorsTotal.WithLabelValues("timeout").Add(float64(cur.Timeouts - prev.Timeouts))
	m.RadioErrorsTotal.WithLabelValues("pll").Add(float64(cur.PLLErrors - prev.PLLErrors))
	m.RadioErrorsTotal.WithLabelValues("vco").Add(float64(cur.VCOErrors - prev.VCOErrors))
	m.RadioErrorsTotal.WithLabelValues("sequencer").Add(float64(cur.SequencerErrors - prev.SequencerErrors))
}
