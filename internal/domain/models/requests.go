package models

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type PredictRequest struct {
	SensorID      int64  `query:"sensor_id" json:"sensor_id" validate:"gte=0"`
	Metric        string `query:"metric" json:"metric" validate:"required"`
	FutureTsUTC   string `query:"future_ts_utc" json:"future_ts_utc" validate:"required"`
	LookbackHours int    `query:"lookback_hours" json:"lookback_hours" default:"72" validate:"gte=1,lte=336"`
}

type PredictAllRequest struct {
	Metric        string `query:"metric" json:"metric" validate:"required"`
	FutureTsUTC   string `query:"future_ts_utc" json:"future_ts_utc" validate:"required"`
	LookbackHours int    `query:"lookback_hours" json:"lookback_hours" default:"72" validate:"gte=1,lte=336"`
}

type DashboardRequest struct {
	TopN int `query:"top_n" json:"top_n" default:"5" validate:"gte=1,lte=25"`
}

type SeriesRequest struct {
	SensorID   int64  `query:"sensor_id" json:"sensor_id" validate:"gte=0"`
	Start      string `query:"start" json:"start" validate:"required"`
	End        string `query:"end" json:"end" validate:"required"`
	TimeColumn string `query:"time_column" json:"time_column" default:"ts_utc" validate:"oneof=ts_utc created_at"`
}

type RangeRequest struct {
	Start      string  `query:"start" json:"start" validate:"required"`
	End        string  `query:"end" json:"end" validate:"required"`
	SensorIDs  []int64 `query:"sensor_ids" json:"sensor_ids"`
	TimeColumn string  `query:"time_column" json:"time_column" default:"ts_utc" validate:"oneof=ts_utc created_at"`
}

type IngestRequest struct {
	Readings []IngestReading `json:"readings" validate:"required,min=1,max=5000,dive"`
}

type IngestReading struct {
	SensorID     int64    `json:"sensor_id" validate:"gte=0"`
	LocationName string   `json:"location_name"`
	Lat          *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon          *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	TsUTC        string   `json:"ts_utc" validate:"required"`
	AverageDB    *float64 `json:"average_db"`
	MaxDB        *float64 `json:"max_db"`
	Celsius      *float64 `json:"celsius"`
}

// Raw converts an ingest entry to a storage row.
func (r IngestReading) Raw() RawReading {
	return RawReading{
		SensorID:     r.SensorID,
		LocationName: r.LocationName,
		Lat:          r.Lat,
		Lon:          r.Lon,
		TsUTC:        r.TsUTC,
		AverageDB:    r.AverageDB,
		MaxDB:        r.MaxDB,
		Celsius:      r.Celsius,
	}
}
