package repository

import (
	"context"
	"time"

	"EnviroPulse/internal/domain/models"
)

// HistorySource supplies raw readings of one sensor over a lookback window
// ending now, ascending by timestamp.
type HistorySource interface {
	FetchHistory(ctx context.Context, sensorID int64, lookback time.Duration, limit int) ([]models.RawReading, error)
}

// ReadingStore persists raw readings.
type ReadingStore interface {
	Store(ctx context.Context, r *models.RawReading) error
	StoreBatch(ctx context.Context, rows []*models.RawReading) error
	Health(ctx context.Context) error
	Close() error
}

// ReadingQuery serves the dashboard and sensor endpoints.
type ReadingQuery interface {
	// Window returns rows of all sensors with ts_utc in [from, to], ascending.
	Window(ctx context.Context, from, to time.Time, limit int) ([]models.RawReading, error)
	// Range returns rows filtered on timeColumn, ordered by sensor then time.
	Range(ctx context.Context, from, to time.Time, sensorIDs []int64, timeColumn string) ([]models.RawReading, error)
	// Recent returns the newest rows across sensors, newest first.
	Recent(ctx context.Context, limit int) ([]models.RawReading, error)
}

// ReadingPublisher forwards raw readings to the ingest bus.
type ReadingPublisher interface {
	Publish(ctx context.Context, r *models.RawReading) error
	PublishBatch(ctx context.Context, rows []*models.RawReading) error
	Close() error
}

// ForecastPublisher emits forecast events.
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, ev *models.ForecastEvent) error
}

// LiveFeed pushes readings and forecasts to connected clients.
type LiveFeed interface {
	PublishReading(r *models.RawReading)
	PublishForecast(ev *models.ForecastEvent)
}

// BundleStore reads serialized model bundles. Read returns an error
// matching fs.ErrNotExist when the artifact is absent.
type BundleStore interface {
	Locate(metric string) string
	Read(ctx context.Context, path string) ([]byte, error)
}

type Metrics interface {
	RecordPrediction(metric, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordBundleLoad(bundle, result string)
	RecordIngested(backend string, sensorID int64)
	RecordLastValue(sensorID int64, metric string, v float64)
}
