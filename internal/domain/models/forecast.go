package models

import "time"

// PredictionResult is the outcome of one forecast request.
type PredictionResult struct {
	SensorID        int64     `json:"sensor_id"`
	Metric          Metric    `json:"metric"`
	FutureTsUTC     time.Time `json:"future_ts_utc"`
	Prediction      float64   `json:"prediction"`
	Unit            string    `json:"unit"`
	BundleID        string    `json:"bundle_id"`
	Note            string    `json:"note"`
	HorizonMin      int       `json:"horizon_min"`
	LastObservedUTC time.Time `json:"last_observed_utc"`
}

// ForecastEvent is published after every successful prediction.
type ForecastEvent struct {
	EventID   string           `json:"event_id"`
	CreatedAt time.Time        `json:"created_at"`
	Result    PredictionResult `json:"result"`
}

// SensorForecast is one entry of a fan-out forecast across sensors.
type SensorForecast struct {
	SensorID int64             `json:"sensor_id"`
	Result   *PredictionResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Kind     ErrorKind         `json:"error_kind,omitempty"`
}

// BundleInfo describes a loaded model bundle.
type BundleInfo struct {
	ID          string    `json:"bundle_id"`
	Path        string    `json:"path"`
	Version     string    `json:"version,omitempty"`
	Target      string    `json:"target"`
	FeatureCols []string  `json:"feature_cols"`
	HmaxMin     int       `json:"hmax_min"`
	CadenceMin  int       `json:"cadence_min"`
	ModelKind   string    `json:"model_kind"`
	LoadedAt    time.Time `json:"loaded_at"`
}
