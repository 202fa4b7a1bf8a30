package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	"EnviroPulse/internal/service/cache"
	"EnviroPulse/internal/services/forecast"
	applogger "EnviroPulse/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Predictor runs a single forecast.
type Predictor interface {
	Predict(ctx context.Context, req forecast.Request) (*models.PredictionResult, error)
}

// BundleLister reports the bundles loaded so far.
type BundleLister interface {
	Loaded() []models.BundleInfo
}

// SensorLister enumerates known sensors.
type SensorLister interface {
	ListSensors(ctx context.Context) ([]models.Sensor, error)
}

// ForecastUseCase wraps the prediction service with caching, metrics and
// event publishing.
type ForecastUseCase struct {
	svc     Predictor
	bundles BundleLister
	sensors SensorLister

	cache    cache.BytesCache
	cacheTTL time.Duration

	events      domrepo.ForecastPublisher
	feed        domrepo.LiveFeed
	metrics     domrepo.Metrics
	concurrency int
	now         func() time.Time
	l           *applogger.Logger
}

type ForecastOption func(*ForecastUseCase)

// WithForecastCache caches successful results for ttl.
func WithForecastCache(c cache.BytesCache, ttl time.Duration) ForecastOption {
	return func(uc *ForecastUseCase) {
		if c != nil && ttl > 0 {
			uc.cache = c
			uc.cacheTTL = ttl
		}
	}
}

func WithForecastEvents(p domrepo.ForecastPublisher) ForecastOption {
	return func(uc *ForecastUseCase) { uc.events = p }
}

func WithForecastFeed(f domrepo.LiveFeed) ForecastOption {
	return func(uc *ForecastUseCase) { uc.feed = f }
}

func WithForecastMetrics(m domrepo.Metrics) ForecastOption {
	return func(uc *ForecastUseCase) { uc.metrics = m }
}

// WithConcurrency bounds the per-sensor fan-out of PredictAll.
func WithConcurrency(n int) ForecastOption {
	return func(uc *ForecastUseCase) {
		if n > 0 {
			uc.concurrency = n
		}
	}
}

func WithForecastLogger(l *applogger.Logger) ForecastOption {
	return func(uc *ForecastUseCase) { uc.l = l }
}

func NewForecastUseCase(svc Predictor, bundles BundleLister, sensors SensorLister, opts ...ForecastOption) *ForecastUseCase {
	uc := &ForecastUseCase{
		svc:         svc,
		bundles:     bundles,
		sensors:     sensors,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type PredictParams struct {
	SensorID    int64
	Metric      string
	FutureTsUTC string
	Lookback    time.Duration
}

// Predict returns the forecast for one sensor. Cached results are returned
// without publishing a new event.
func (uc *ForecastUseCase) Predict(ctx context.Context, p PredictParams) (*models.PredictionResult, error) {
	key := cacheKey(p)
	if uc.cache != nil {
		var cached models.PredictionResult
		ok, err := cache.GetJSON(ctx, uc.cache, key, &cached)
		if err != nil {
			uc.warn("forecast cache read failed", err)
		}
		if ok {
			uc.recordPrediction(p.Metric, "cache_hit")
			return &cached, nil
		}
	}

	start := uc.now()
	res, err := uc.svc.Predict(ctx, forecast.Request{
		SensorID:   p.SensorID,
		Metric:     p.Metric,
		FutureTime: p.FutureTsUTC,
		Lookback:   p.Lookback,
	})
	if uc.metrics != nil {
		uc.metrics.RecordLatency("predict", uc.now().Sub(start).Seconds())
	}
	if err != nil {
		uc.recordFailure(p.Metric, err)
		return nil, err
	}
	uc.recordPrediction(p.Metric, "ok")

	if uc.cache != nil {
		if err := cache.SetJSON(ctx, uc.cache, key, res, uc.cacheTTL); err != nil {
			uc.warn("forecast cache write failed", err)
		}
	}
	uc.publish(ctx, res)
	return res, nil
}

// PredictAll forecasts every known sensor. Per-sensor failures are reported
// in the entry and do not fail the call; entries keep sensor order.
func (uc *ForecastUseCase) PredictAll(ctx context.Context, metric, future string, lookback time.Duration) ([]models.SensorForecast, error) {
	sensors, err := uc.sensors.ListSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}

	out := make([]models.SensorForecast, len(sensors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for i, s := range sensors {
		i, id := i, s.SensorID
		g.Go(func() error {
			res, err := uc.Predict(gctx, PredictParams{SensorID: id, Metric: metric, FutureTsUTC: future, Lookback: lookback})
			out[i] = models.SensorForecast{SensorID: id, Result: res}
			if err != nil {
				kind := models.KindOf(err)
				if kind == "" {
					// Infrastructure failures abort the fan-out.
					return fmt.Errorf("sensor %d: %w", id, err)
				}
				out[i].Error = err.Error()
				out[i].Kind = kind
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Bundles lists the bundles loaded so far.
func (uc *ForecastUseCase) Bundles() []models.BundleInfo {
	return uc.bundles.Loaded()
}

// publish emits the forecast event. Failures are logged and never fail the
// prediction.
func (uc *ForecastUseCase) publish(ctx context.Context, res *models.PredictionResult) {
	if uc.events == nil && uc.feed == nil {
		return
	}
	ev := &models.ForecastEvent{EventID: uuid.NewString(), CreatedAt: uc.now().UTC(), Result: *res}
	if uc.feed != nil {
		uc.feed.PublishForecast(ev)
	}
	if uc.events != nil {
		if err := uc.events.PublishForecast(ctx, ev); err != nil {
			uc.warn("publish forecast event failed", err, applogger.Int64("sensor_id", res.SensorID))
		}
	}
}

func (uc *ForecastUseCase) recordFailure(metric string, err error) {
	if uc.metrics == nil {
		return
	}
	kind := string(models.KindOf(err))
	if kind == "" {
		kind = "internal"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = "canceled"
		}
	}
	uc.metrics.RecordPrediction(metric, kind)
	uc.metrics.RecordError(kind)
}

func (uc *ForecastUseCase) recordPrediction(metric, result string) {
	if uc.metrics != nil {
		uc.metrics.RecordPrediction(metric, result)
	}
}

func (uc *ForecastUseCase) warn(msg string, err error, fields ...applogger.Field) {
	if uc.l == nil {
		return
	}
	uc.l.Warn(msg, append(fields, applogger.Error(err))...)
}

func cacheKey(p PredictParams) string {
	return fmt.Sprintf("forecast:%d:%s:%s:%d", p.SensorID, p.Metric, p.FutureTsUTC, int64(p.Lookback/time.Minute))
}

