package models

import "time"

// SeriesPoint is an hourly bucket; T is epoch ms of the local hour start.
type SeriesPoint struct {
	T     int64   `json:"t"`
	Value float64 `json:"value"`
}

// HeatRiskPoint counts sensors by hourly mean temperature band.
type HeatRiskPoint struct {
	T        int64 `json:"t"`
	Elevated int   `json:"elevated"`
	High     int   `json:"high"`
	Total    int   `json:"total"`
}

type TemperatureThresholds struct {
	ElevatedC float64 `json:"elevated_c"`
	HighC     float64 `json:"high_c"`
	Note      string  `json:"note"`
}

type NoiseThresholds struct {
	DayDB     float64 `json:"day_db"`
	NightDB   float64 `json:"night_db"`
	CurrentDB float64 `json:"current_db"`
	Note      string  `json:"note"`
}

type TemperatureHotspot struct {
	SensorID             int64    `json:"sensor_id"`
	LocationName         string   `json:"location_name"`
	Lat                  *float64 `json:"lat"`
	Lon                  *float64 `json:"lon"`
	CurrentC             *float64 `json:"current_c"`
	RiskLabel            string   `json:"risk_label"`
	ThresholdExceedanceC *float64 `json:"threshold_exceedance_c"`
	LastUpdateUTC        string   `json:"last_update_utc"`
	Trend6h              string   `json:"trend_6h,omitempty"`
	Trend24h             string   `json:"trend_24h"`
}

type NoiseHotspot struct {
	SensorID              int64    `json:"sensor_id"`
	LocationName          string   `json:"location_name"`
	Lat                   *float64 `json:"lat"`
	Lon                   *float64 `json:"lon"`
	CurrentAvgDB          *float64 `json:"current_avg_db"`
	ThresholdDB           float64  `json:"threshold_db"`
	ThresholdExceedanceDB *float64 `json:"threshold_exceedance_db"`
	IsViolationProxy      bool     `json:"is_violation_proxy"`
	LastUpdateUTC         string   `json:"last_update_utc"`
	Trend24h              string   `json:"trend_24h"`
}

type CityHeatRisk struct {
	RiskLabel             string   `json:"risk_label"`
	MeanC                 *float64 `json:"mean_c"`
	ElevatedSensors       int      `json:"elevated_sensors"`
	HighSensors           int      `json:"high_sensors"`
	TotalReportingSensors int      `json:"total_reporting_sensors"`
}

type HeatRisk struct {
	CityNow   CityHeatRisk    `json:"city_now"`
	Series24h []HeatRiskPoint `json:"series_24h"`
	Note      string          `json:"note"`
}

type Trend struct {
	City6h  string `json:"city_6h,omitempty"`
	City24h string `json:"city_24h"`
}

type TemperatureDashboard struct {
	NowUTC      time.Time             `json:"now_utc"`
	Thresholds  TemperatureThresholds `json:"thresholds"`
	HeatRisk    HeatRisk              `json:"heat_risk"`
	TopHotspots []TemperatureHotspot  `json:"top_hotspots_now"`
	Trend       Trend                 `json:"trend"`
	Series24h   []SeriesPoint         `json:"series_24h"`
	SkippedRows int                   `json:"skipped_rows,omitempty"`
}

type NoiseDashboard struct {
	NowUTC          time.Time       `json:"now_utc"`
	NowLocal        string          `json:"now_local"`
	Thresholds      NoiseThresholds `json:"thresholds"`
	TopHotspots     []NoiseHotspot  `json:"top_hotspots_now"`
	NoiseViolations []NoiseHotspot  `json:"noise_violations"`
	Trend           Trend           `json:"trend"`
	Series24h       []SeriesPoint   `json:"series_24h"`
	SkippedRows     int             `json:"skipped_rows,omitempty"`
}

// SensorRows lists rows with their count.
type SensorRows struct {
	Count int          `json:"count"`
	Rows  []RawReading `json:"rows"`
}

// SensorSeries is one sensor's rows over a time range.
type SensorSeries struct {
	SensorID   int64        `json:"sensor_id"`
	Start      string       `json:"start"`
	End        string       `json:"end"`
	TimeColumn string       `json:"time_column"`
	Count      int          `json:"count"`
	Rows       []RawReading `json:"rows"`
}

// SensorRange holds rows of several sensors keyed by sensor id.
type SensorRange struct {
	Start      string                  `json:"start"`
	End        string                  `json:"end"`
	TimeColumn string                  `json:"time_column"`
	Count      int                     `json:"count"`
	BySensor   map[string][]RawReading `json:"by_sensor"`
}
