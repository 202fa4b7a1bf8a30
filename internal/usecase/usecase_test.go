package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/service/cache"
	"EnviroPulse/internal/services/forecast"
	"EnviroPulse/internal/services/timenorm"
	pkgkafka "EnviroPulse/pkg/kafka"
	"EnviroPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

type fakeQuery struct {
	recent   []models.RawReading
	window   []models.RawReading
	rng      []models.RawReading
	from, to time.Time
	ids      []int64
	col      string
	err      error
}

func (q *fakeQuery) Window(_ context.Context, from, to time.Time, _ int) ([]models.RawReading, error) {
	q.from, q.to = from, to
	return q.window, q.err
}

func (q *fakeQuery) Range(_ context.Context, from, to time.Time, ids []int64, col string) ([]models.RawReading, error) {
	q.from, q.to, q.ids, q.col = from, to, ids, col
	return q.rng, q.err
}

func (q *fakeQuery) Recent(context.Context, int) ([]models.RawReading, error) {
	return q.recent, q.err
}

type recordingMetrics struct {
	metrics.Nop
	mu          sync.Mutex
	predictions []string
	errors      []string
	ingested    int
}

func (m *recordingMetrics) RecordPrediction(metric, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = append(m.predictions, metric+":"+result)
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *recordingMetrics) RecordIngested(string, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested++
}

type recordingFeed struct {
	mu        sync.Mutex
	readings  []*models.RawReading
	forecasts []*models.ForecastEvent
}

func (f *recordingFeed) PublishReading(r *models.RawReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
}

func (f *recordingFeed) PublishForecast(ev *models.ForecastEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecasts = append(f.forecasts, ev)
}

type fakePredictor struct {
	mu    sync.Mutex
	calls int
	errs  map[int64]error
}

func (p *fakePredictor) Predict(_ context.Context, req forecast.Request) (*models.PredictionResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if err := p.errs[req.SensorID]; err != nil {
		return nil, err
	}
	return &models.PredictionResult{SensorID: req.SensorID, Metric: models.Metric(req.Metric), Prediction: 21.5}, nil
}

type fakeLister []models.Sensor

func (l fakeLister) ListSensors(context.Context) ([]models.Sensor, error) { return l, nil }

type fakeBundles []models.BundleInfo

func (b fakeBundles) Loaded() []models.BundleInfo { return b }

type failingEvents struct{ calls int }

func (e *failingEvents) PublishForecast(context.Context, *models.ForecastEvent) error {
	e.calls++
	return errors.New("broker down")
}

func TestForecast_CachesAndPublishes(t *testing.T) {
	p := &fakePredictor{}
	feed := &recordingFeed{}
	events := &failingEvents{}
	m := &recordingMetrics{}
	uc := NewForecastUseCase(p, fakeBundles{{ID: "b1"}}, fakeLister{},
		WithForecastCache(cache.NewTTLCache(10), time.Minute),
		WithForecastFeed(feed),
		WithForecastEvents(events),
		WithForecastMetrics(m),
	)

	params := PredictParams{SensorID: 3, Metric: "celsius", FutureTsUTC: "2024-07-01T13:00:00Z", Lookback: 72 * time.Hour}
	res, err := uc.Predict(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 21.5, res.Prediction)

	res, err = uc.Predict(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.SensorID)

	assert.Equal(t, 1, p.calls)
	require.Len(t, feed.forecasts, 1)
	assert.NotEmpty(t, feed.forecasts[0].EventID)
	assert.Equal(t, 1, events.calls, "publish failure does not fail the prediction")
	assert.Equal(t, []string{"celsius:ok", "celsius:cache_hit"}, m.predictions)
	assert.Len(t, uc.Bundles(), 1)
}

func TestForecast_ErrorsAreNotCached(t *testing.T) {
	p := &fakePredictor{errs: map[int64]error{1: models.NewForecastError(models.KindNoHistory, "no history")}}
	m := &recordingMetrics{}
	uc := NewForecastUseCase(p, fakeBundles{}, fakeLister{},
		WithForecastCache(cache.NewTTLCache(10), time.Minute),
		WithForecastMetrics(m),
	)

	for i := 0; i < 2; i++ {
		_, err := uc.Predict(context.Background(), PredictParams{SensorID: 1, Metric: "celsius", FutureTsUTC: "x"})
		assert.ErrorIs(t, err, models.ErrNoHistory)
	}
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, []string{"no_history", "no_history"}, m.errors)
}

func TestForecast_PredictAll(t *testing.T) {
	p := &fakePredictor{errs: map[int64]error{
		2: models.NewForecastError(models.KindHorizonTooLarge, "too far"),
	}}
	sensors := fakeLister{{SensorID: 1}, {SensorID: 2}, {SensorID: 5}}
	uc := NewForecastUseCase(p, fakeBundles{}, sensors, WithConcurrency(2))

	out, err := uc.PredictAll(context.Background(), "celsius", "2024-07-01T13:00:00Z", 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(1), out[0].SensorID)
	require.NotNil(t, out[0].Result)
	assert.Nil(t, out[1].Result)
	assert.Equal(t, models.KindHorizonTooLarge, out[1].Kind)
	assert.Equal(t, "too far", out[1].Error)
	assert.Equal(t, int64(5), out[2].Result.SensorID)
}

func TestForecast_PredictAllAbortsOnInfraError(t *testing.T) {
	p := &fakePredictor{errs: map[int64]error{1: errors.New("clickhouse down")}}
	uc := NewForecastUseCase(p, fakeBundles{}, fakeLister{{SensorID: 1}})

	_, err := uc.PredictAll(context.Background(), "celsius", "x", 0)
	assert.ErrorContains(t, err, "clickhouse down")
}

func TestDashboard_SkipsBadRowsAndCaches(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQuery{window: []models.RawReading{
		{SensorID: 1, TsUTC: "2024-07-01T11:50:00Z", Celsius: f(32), AverageDB: f(60)},
		{SensorID: 2, TsUTC: "2024-07-01T11:55:00Z", Celsius: f(24), AverageDB: f(70)},
		{SensorID: 3, TsUTC: "yesterday", Celsius: f(40)},
	}}
	norm, err := timenorm.New(timenorm.DefaultZone)
	require.NoError(t, err)

	uc := NewDashboardUseCase(q, norm, cache.NewTTLCache(10), DashboardConfig{CacheTTL: time.Minute}, nil)
	uc.now = func() time.Time { return now }

	temp, err := uc.Temperature(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), q.from)
	assert.Equal(t, 1, temp.SkippedRows)
	require.Len(t, temp.TopHotspots, 2)
	assert.Equal(t, int64(1), temp.TopHotspots[0].SensorID)
	assert.Equal(t, 1, temp.HeatRisk.CityNow.HighSensors)

	q.window = nil
	temp, err = uc.Temperature(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, temp.TopHotspots, 2, "served from cache")

	noise, err := uc.Noise(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, noise.TopHotspots)
}

func TestDashboard_WindowError(t *testing.T) {
	norm, err := timenorm.New(timenorm.DefaultZone)
	require.NoError(t, err)
	uc := NewDashboardUseCase(&fakeQuery{err: errors.New("boom")}, norm, nil, DashboardConfig{}, nil)

	_, err = uc.Noise(context.Background(), 5)
	assert.ErrorContains(t, err, "dashboard window: boom")
}

func TestSensors_LatestPerSensor(t *testing.T) {
	q := &fakeQuery{recent: []models.RawReading{
		{SensorID: 7, LocationName: "Pier", TsUTC: "2024-07-01T12:00:00Z"},
		{SensorID: 2, LocationName: "Park", TsUTC: "2024-07-01T11:59:00Z"},
		{SensorID: 7, LocationName: "Old", TsUTC: "2024-07-01T11:00:00Z"},
	}}
	uc := NewSensorsUseCase(q)

	sensors, err := uc.ListSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, int64(2), sensors[0].SensorID)
	assert.Equal(t, "Pier", sensors[1].LocationName)

	latest, err := uc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Count)
	assert.Equal(t, "2024-07-01T12:00:00Z", latest.Rows[1].TsUTC)
}

func TestSensors_Range(t *testing.T) {
	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	q := &fakeQuery{rng: []models.RawReading{{SensorID: 1}, {SensorID: 1}, {SensorID: 4}}}
	uc := NewSensorsUseCase(q)

	res, err := uc.Range(context.Background(), RangeParams{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, "ts_utc", q.col)
	assert.Equal(t, 3, res.Count)
	keys := make([]string, 0, len(res.BySensor))
	for k := range res.BySensor {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"1", "4"}, keys)
	assert.Len(t, res.BySensor["1"], 2)

	_, err = uc.Range(context.Background(), RangeParams{From: to, To: from})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	q.rng = nil
	series, err := uc.Series(context.Background(), 9, RangeParams{From: from, To: to, TimeColumn: "created_at"})
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, q.ids)
	assert.Equal(t, "created_at", series.TimeColumn)
	assert.NotNil(t, series.Rows)
}

type memStore struct {
	rows []*models.RawReading
	err  error
}

func (s *memStore) Store(ctx context.Context, r *models.RawReading) error {
	return s.StoreBatch(ctx, []*models.RawReading{r})
}

func (s *memStore) StoreBatch(_ context.Context, rows []*models.RawReading) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func TestReadingProcessor_ClickHouseBackend(t *testing.T) {
	store := &memStore{}
	feed := &recordingFeed{}
	m := &recordingMetrics{}
	p := NewReadingProcessor(nil, store, feed, m, BackendClickHouse)

	require.NoError(t, p.ProcessBatch(context.Background(), []*models.RawReading{{SensorID: 1}, {SensorID: 2}}))
	assert.Len(t, store.rows, 2)
	assert.Len(t, feed.readings, 2)
	assert.Equal(t, 2, m.ingested)

	p = NewReadingProcessor(nil, store, feed, m, BackendKafka)
	assert.Error(t, p.Process(context.Background(), &models.RawReading{SensorID: 1}))
}

func TestKafkaReadingsHandler(t *testing.T) {
	store := &memStore{}
	feed := &recordingFeed{}
	h := NewKafkaReadingsHandler("readings", store, feed, &recordingMetrics{})
	assert.Equal(t, "readings", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"2024-07-01T12:00:00Z","celsius":21}`)))
	require.Len(t, store.rows, 1)
	assert.Equal(t, 21.0, *store.rows[0].Celsius)
	assert.Len(t, feed.readings, 1)

	var he *pkgkafka.HookError
	err := h.Handle(context.Background(), []byte(`{not json`))
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_DECODE", he.Code)

	err = h.Handle(context.Background(), []byte(`{"sensor_id":4}`))
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)

	store.err = errors.New("insert failed")
	assert.Error(t, h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"2024-07-01T12:00:00Z"}`)))
}

func TestKafkaReadingsHandler_RejectsUnparseableTimestamp(t *testing.T) {
	store := &memStore{}
	m := &recordingMetrics{}
	h := NewKafkaReadingsHandler("readings", store, nil, m)

	var he *pkgkafka.HookError
	err := h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"not-a-time","celsius":21}`))
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)
	assert.Contains(t, err.Error(), "not-a-time")
	assert.Empty(t, store.rows)
	assert.Equal(t, []string{"consumer_validate"}, m.errors)
	assert.Zero(t, m.ingested)

	// Naive values are read as UTC.
	require.NoError(t, h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"2024-07-01 12:00:00","celsius":21}`)))
	assert.Len(t, store.rows, 1)
}

func TestKafkaReadingsHandler_NilMetrics(t *testing.T) {
	store := &memStore{}
	h := NewKafkaReadingsHandler("readings", store, nil, nil)

	var he *pkgkafka.HookError
	assert.NotPanics(t, func() {
		require.ErrorAs(t, h.Handle(context.Background(), []byte(`{not json`)), &he)
		require.ErrorAs(t, h.Handle(context.Background(), []byte(`{"sensor_id":4}`)), &he)
		require.NoError(t, h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"2024-07-01T12:00:00Z","celsius":21}`)))
		store.err = errors.New("insert failed")
		require.Error(t, h.Handle(context.Background(), []byte(`{"sensor_id":4,"ts_utc":"2024-07-01T12:00:00Z"}`)))
	})
	assert.Len(t, store.rows, 1)
}
