package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	bundleLoads *prometheus.CounterVec
	ingested    *prometheus.CounterVec
	lastValue   *prometheus.GaugeVec
}

// New registers the recorder's collectors on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enviropulse_predictions_total",
				Help: "Forecast requests by metric and outcome",
			},
			[]string{"metric", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enviropulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enviropulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		bundleLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enviropulse_bundle_loads_total",
				Help: "Model bundle load attempts",
			},
			[]string{"bundle", "result"},
		),
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enviropulse_readings_ingested_total",
				Help: "Readings written to a backend",
			},
			[]string{"backend", "sensor_id"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "enviropulse_last_value",
				Help: "Last observed value per sensor and metric",
			},
			[]string{"sensor_id", "metric"},
		),
	}
}

func (r *Recorder) RecordPrediction(metric, result string) {
	r.predictions.WithLabelValues(metric, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBundleLoad(bundle, result string) {
	r.bundleLoads.WithLabelValues(bundle, result).Inc()
}

func (r *Recorder) RecordIngested(backend string, sensorID int64) {
	r.ingested.WithLabelValues(backend, strconv.FormatInt(sensorID, 10)).Inc()
}

func (r *Recorder) RecordLastValue(sensorID int64, metric string, v float64) {
	r.lastValue.WithLabelValues(strconv.FormatInt(sensorID, 10), metric).Set(v)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordPrediction(string, string)        {}
func (Nop) RecordError(string)                     {}
func (Nop) RecordLatency(string, float64)          {}
func (Nop) RecordBundleLoad(string, string)        {}
func (Nop) RecordIngested(string, int64)           {}
func (Nop) RecordLastValue(int64, string, float64) {}
