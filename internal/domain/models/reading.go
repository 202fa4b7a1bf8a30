package models

import (
	"fmt"
	"math"
	"time"
)

// Metric names a forecastable reading column.
type Metric string

const (
	MetricCelsius   Metric = "celsius"
	MetricAverageDB Metric = "average_db"
	MetricMaxDB     Metric = "max_db"
)

// ForecastMetrics lists the metrics that have trained bundles.
var ForecastMetrics = []Metric{MetricAverageDB, MetricCelsius}

// Valid reports whether m is one of the forecastable metrics.
func (m Metric) Valid() bool {
	for _, fm := range ForecastMetrics {
		if m == fm {
			return true
		}
	}
	return false
}

// Unit returns the display unit for m.
func (m Metric) Unit() string {
	switch m {
	case MetricCelsius:
		return "°C"
	case MetricAverageDB, MetricMaxDB:
		return "dBA"
	default:
		return ""
	}
}

// ParseMetric validates a metric name coming from a request.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", NewForecastError(KindInvalidMetric, fmt.Sprintf("metric must be one of %v, got %q", ForecastMetrics, s))
	}
	return m, nil
}

// RawReading is a sensor row as stored and transported. Timestamps are kept
// verbatim so that normalization can report malformed values.
type RawReading struct {
	EventID      string   `json:"event_id,omitempty"`
	SensorID     int64    `json:"sensor_id"`
	LocationName string   `json:"location_name,omitempty"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	TsUTC        string   `json:"ts_utc"`
	CreatedAt    string   `json:"created_at,omitempty"`
	AverageDB    *float64 `json:"average_db"`
	MaxDB        *float64 `json:"max_db"`
	Celsius      *float64 `json:"celsius"`
}

// Reading is a normalized observation with an absolute UTC timestamp.
type Reading struct {
	SensorID     int64
	Timestamp    time.Time
	LocationName string
	Lat          *float64
	Lon          *float64
	AverageDB    *float64
	MaxDB        *float64
	Celsius      *float64
}

// Value returns the named metric value; ok is false when the value is absent or NaN.
func (r Reading) Value(name string) (float64, bool) {
	var p *float64
	switch Metric(name) {
	case MetricCelsius:
		p = r.Celsius
	case MetricAverageDB:
		p = r.AverageDB
	case MetricMaxDB:
		p = r.MaxDB
	}
	if p == nil || math.IsNaN(*p) {
		return 0, false
	}
	return *p, true
}

// HasColumn reports whether name is a metric column readings can carry.
func HasColumn(name string) bool {
	switch Metric(name) {
	case MetricCelsius, MetricAverageDB, MetricMaxDB:
		return true
	}
	return false
}

// HistoryWindow is the time-ordered history of exactly one sensor.
type HistoryWindow struct {
	SensorID int64
	Readings []Reading
}

// Last returns the most recent reading; ok is false for an empty window.
func (w HistoryWindow) Last() (Reading, bool) {
	if len(w.Readings) == 0 {
		return Reading{}, false
	}
	return w.Readings[len(w.Readings)-1], true
}

// Sensor is the static description of a deployed sensor.
type Sensor struct {
	SensorID     int64    `json:"sensor_id"`
	LocationName string   `json:"location_name"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
}
