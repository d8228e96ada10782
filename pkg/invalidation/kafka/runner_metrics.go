package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	msgs       *prometheus.CounterVec
	apply      *prometheus.CounterVec
	proc       *prometheus.HistogramVec
	lagGauge   prometheus.Gauge
	partitions prometheus.Gauge
	lastSeq    *prometheus.GaugeVec
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_events_total",
				Help: "Catalog change events by result (ok, error, invalid).",
			},
			[]string{"result"},
		),
		apply: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_invalidation_actions_total",
				Help: "Reloads, purges and skipped duplicates caused by catalog events.",
			},
			[]string{"action"},
		),
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_event_processing_seconds",
				Help:    "Time to apply one catalog event by op.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
			},
			[]string{"op"},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_event_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
		partitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_consumer_partitions",
				Help: "Partitions currently assigned to this consumer.",
			},
		),
		lastSeq: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_event_last_seq",
				Help: "Last applied sequence number per event source.",
			},
			[]string{"source"},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.apply, m.proc, m.lagGauge, m.partitions, m.lastSeq)
	}
	return m
}
