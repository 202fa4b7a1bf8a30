package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	IngestAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enviropulse",
			Subsystem: "ingest",
			Name:      "accepted_total",
			Help:      "Readings accepted by the ingest pipeline",
		},
		[]string{"source"},
	)

	IngestRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enviropulse",
			Subsystem: "ingest",
			Name:      "rejected_total",
			Help:      "Readings rejected by reason",
		},
		[]string{"reason"},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "enviropulse",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Readings buffered awaiting flush",
		},
	)

	IngestFlushSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "enviropulse",
			Subsystem: "ingest",
			Name:      "flush_seconds",
			Help:      "Latency of one buffered flush",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(IngestAccepted, IngestRejected, IngestQueueDepth, IngestFlushSeconds)
	})
}
