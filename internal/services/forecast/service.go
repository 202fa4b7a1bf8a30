// Package forecast turns a (sensor, metric, future time) request into a
// single point prediction.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/domain/repository"
	"EnviroPulse/internal/services/bundle"
	"EnviroPulse/internal/services/features"
	"EnviroPulse/internal/services/timenorm"
	"EnviroPulse/pkg/logger"
)

const (
	DefaultLookback     = 72 * time.Hour
	DefaultHistoryLimit = 50000
)

// BundleProvider resolves the trained bundle of a metric.
type BundleProvider interface {
	ForMetric(ctx context.Context, metric models.Metric) (*bundle.Bundle, error)
}

// Request asks for the value of Metric at sensor SensorID at FutureTime.
// FutureTime is parsed by the normalizer; naive values are local time.
type Request struct {
	SensorID   int64
	Metric     string
	FutureTime string
	Lookback   time.Duration
}

// Service is stateless apart from its collaborators and safe for concurrent use.
type Service struct {
	history repository.HistorySource
	bundles BundleProvider
	norm    *timenorm.Normalizer
	builder *features.Builder

	lookback time.Duration
	limit    int
	l        *logger.Logger
}

type Option func(*Service)

func WithLookback(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lookback = d
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.l = l } }

func NewService(history repository.HistorySource, bundles BundleProvider, norm *timenorm.Normalizer, opts ...Option) *Service {
	s := &Service{
		history:  history,
		bundles:  bundles,
		norm:     norm,
		builder:  features.NewBuilder(norm.Location()),
		lookback: DefaultLookback,
		limit:    DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookback returns the default history window.
func (s *Service) Lookback() time.Duration { return s.lookback }

// Predict runs the full pipeline. Every failure is terminal for the request.
func (s *Service) Predict(ctx context.Context, req Request) (*models.PredictionResult, error) {
	metric, err := models.ParseMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	future, err := s.norm.ResolveFuture(req.FutureTime)
	if err != nil {
		return nil, err
	}
	lookback := req.Lookback
	if lookback <= 0 {
		lookback = s.lookback
	}

	raw, err := s.history.FetchHistory(ctx, req.SensorID, lookback, s.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if len(raw) == 0 {
		return nil, noHistory(req.SensorID, lookback)
	}

	readings, err := s.norm.NormalizeHistory(raw)
	if err != nil {
		return nil, err
	}
	window := sensorWindow(readings, req.SensorID)
	last, ok := window.Last()
	if !ok {
		return nil, noHistory(req.SensorID, lookback)
	}

	b, err := s.bundles.ForMetric(ctx, metric)
	if err != nil {
		return nil, err
	}
	if b.Target != string(metric) {
		return nil, models.NewForecastError(models.KindMalformedBundle,
			fmt.Sprintf("bundle at '%s' targets %q, requested %q", b.Path, b.Target, metric))
	}

	horizon, err := horizonMinutes(last.Timestamp, future, b.HmaxMin)
	if err != nil {
		return nil, err
	}

	row, err := s.builder.Build(window.Readings, b.Schema, horizon)
	if err != nil {
		return nil, err
	}
	x, missing := row.Select(b.FeatureCols)
	if len(missing) > 0 {
		return nil, insufficient(missing, b.Schema.RequiredMinutes())
	}

	y, err := b.Model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", b.ID, err)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, fmt.Errorf("model %s returned a non-finite value", b.ID)
	}

	if s.l != nil {
		s.l.Debug("prediction computed",
			logger.Int64("sensor_id", req.SensorID),
			logger.String("metric", string(metric)),
			logger.Int("horizon_min", horizon),
			logger.Int("history_rows", len(window.Readings)),
			logger.Float64("prediction", y),
		)
	}

	return &models.PredictionResult{
		SensorID:        req.SensorID,
		Metric:          metric,
		FutureTsUTC:     future,
		Prediction:      y,
		Unit:            metric.Unit(),
		BundleID:        b.ID,
		Note:            fmt.Sprintf("Predicted using last %dh history with %d-minute features.", int(lookback/time.Hour), b.CadenceMin),
		HorizonMin:      horizon,
		LastObservedUTC: last.Timestamp,
	}, nil
}

func sensorWindow(readings []models.Reading, sensorID int64) models.HistoryWindow {
	w := models.HistoryWindow{SensorID: sensorID}
	for _, r := range readings {
		if r.SensorID == sensorID {
			w.Readings = append(w.Readings, r)
		}
	}
	sort.SliceStable(w.Readings, func(i, j int) bool { return w.Readings[i].Timestamp.Before(w.Readings[j].Timestamp) })
	return w
}

// horizonMinutes rounds the gap between last and future to whole minutes,
// half to even.
func horizonMinutes(last, future time.Time, hmax int) (int, error) {
	h := int(math.RoundToEven(future.Sub(last).Minutes()))
	if h < 1 {
		e := models.NewForecastError(models.KindHorizonTooSmall, fmt.Sprintf(
			"future time must be after the last data point: last=%s future=%s (horizon %dm, minimum 1m)",
			last.UTC().Format(time.RFC3339), future.UTC().Format(time.RFC3339), h))
		e.Requested = h
		e.Bound = 1
		return 0, e
	}
	if h > hmax {
		e := models.NewForecastError(models.KindHorizonTooLarge, fmt.Sprintf(
			"horizon %dm exceeds trained hmax %dm", h, hmax))
		e.Requested = h
		e.Bound = hmax
		return 0, e
	}
	return h, nil
}

func noHistory(sensorID int64, lookback time.Duration) error {
	return models.NewForecastError(models.KindNoHistory, fmt.Sprintf(
		"no recent history found for sensor_id=%d (lookback=%dh)", sensorID, int(lookback/time.Hour)))
}

func insufficient(missing []string, minutes int) error {
	e := models.NewForecastError(models.KindInsufficientHistory, fmt.Sprintf(
		"not enough history to compute features, missing: [%s]; provide at least %d minutes of recent history for this sensor",
		strings.Join(missing, ", "), minutes))
	e.Missing = missing
	return e
}
