package dashboard

import (
	"testing"
	"time"

	"EnviroPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 14:30 EDT, daytime.
var now = time.Date(2024, 7, 15, 18, 30, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func reading(sid int64, ago time.Duration, celsius, db *float64) models.Reading {
	return models.Reading{SensorID: sid, Timestamp: now.Add(-ago), Celsius: celsius, AverageDB: db}
}

func toronto(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	return loc
}

func TestTrendLabel(t *testing.T) {
	assert.Equal(t, TrendUnknown, TrendLabel(nil, f(1)))
	assert.Equal(t, TrendUnknown, TrendLabel(f(1), nil))
	assert.Equal(t, TrendStable, TrendLabel(f(20.15), f(20)))
	assert.Equal(t, TrendWorsening, TrendLabel(f(20.5), f(20)))
	assert.Equal(t, TrendImproving, TrendLabel(f(19.5), f(20)))
}

func TestHeatRiskLabel(t *testing.T) {
	assert.Equal(t, TrendUnknown, HeatRiskLabel(nil))
	assert.Equal(t, RiskNormal, HeatRiskLabel(f(25.9)))
	assert.Equal(t, RiskElevated, HeatRiskLabel(f(26)))
	assert.Equal(t, RiskHigh, HeatRiskLabel(f(31)))
}

func TestNoiseThreshold(t *testing.T) {
	loc := toronto(t)
	at := func(h int) time.Time { return time.Date(2024, 7, 15, h, 0, 0, 0, loc) }
	assert.Equal(t, NoiseNightDB, NoiseThreshold(at(6)))
	assert.Equal(t, NoiseDayDB, NoiseThreshold(at(7)))
	assert.Equal(t, NoiseDayDB, NoiseThreshold(at(20)))
	assert.Equal(t, NoiseNightDB, NoiseThreshold(at(21)))
}

func TestWindowMeans(t *testing.T) {
	rows := []models.Reading{
		reading(1, time.Hour, f(22), nil),
		reading(1, 5*time.Hour, f(24), nil),
		reading(1, 8*time.Hour, f(20), nil),
		reading(1, 13*time.Hour, f(99), nil), // outside both 6h windows
	}
	w := WindowMeans(rows, "celsius", now, 6*time.Hour)
	require.NotNil(t, w.Current)
	require.NotNil(t, w.Previous)
	assert.InDelta(t, 23, *w.Current, 1e-9)
	assert.InDelta(t, 20, *w.Previous, 1e-9)
	assert.Equal(t, TrendWorsening, w.Trend())

	empty := WindowMeans(rows, "average_db", now, 6*time.Hour)
	assert.Nil(t, empty.Current)
	assert.Equal(t, TrendUnknown, empty.Trend())
}

func TestLatestPerSensor(t *testing.T) {
	a := reading(1, time.Hour, f(1), nil)
	b := reading(1, time.Minute, f(2), nil)
	c := reading(1, time.Minute, f(3), nil)
	d := reading(2, 2*time.Hour, f(4), nil)

	latest := LatestPerSensor([]models.Reading{b, a, c, d})
	require.Len(t, latest, 2)
	assert.Equal(t, 3.0, *latest[1].Celsius)
	assert.Equal(t, 4.0, *latest[2].Celsius)
}

func TestBucketHourly_LocalHours(t *testing.T) {
	agg := NewAggregator(toronto(t))
	rows := []models.Reading{
		reading(1, 10*time.Minute, f(20), nil), // 14:20 local
		reading(2, 20*time.Minute, f(22), nil), // 14:10 local
		reading(1, 50*time.Minute, f(30), nil), // 13:40 local
		reading(1, 25*time.Hour, f(50), nil),   // outside window
		reading(1, 5*time.Minute, nil, f(60)),  // no celsius
	}

	got := agg.BucketHourly(rows, "celsius", now)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, 7, 15, 17, 0, 0, 0, time.UTC).UnixMilli(), got[0].T)
	assert.InDelta(t, 30, got[0].Value, 1e-9)
	assert.Equal(t, time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC).UnixMilli(), got[1].T)
	assert.InDelta(t, 21, got[1].Value, 1e-9)
}

func TestHeatRiskSeries(t *testing.T) {
	agg := NewAggregator(toronto(t))
	rows := []models.Reading{
		reading(1, 10*time.Minute, f(30), nil),
		reading(1, 20*time.Minute, f(34), nil), // sensor 1 hourly mean 32: high
		reading(2, 15*time.Minute, f(27), nil), // elevated
		reading(3, 25*time.Minute, f(20), nil), // normal
	}

	got := agg.HeatRiskSeries(rows, now)
	require.Len(t, got, 25)
	for _, p := range got[:24] {
		assert.Zero(t, p.Total)
	}
	cur := got[24]
	assert.Equal(t, time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC).UnixMilli(), cur.T)
	assert.Equal(t, 3, cur.Total)
	assert.Equal(t, 1, cur.High)
	assert.Equal(t, 1, cur.Elevated)
}

func TestTemperatureDashboard(t *testing.T) {
	agg := NewAggregator(toronto(t))
	rows := []models.Reading{
		reading(1, 30*time.Hour, f(20), nil),
		reading(1, time.Hour, f(27), nil),
		reading(2, time.Hour, f(32), nil),
		reading(3, time.Hour, nil, f(50)),
		reading(4, 2*time.Hour, f(18), nil),
	}
	rows[1].LocationName = "Market Square"

	d := agg.Temperature(rows, now, 3)
	require.Len(t, d.TopHotspots, 3)
	assert.Equal(t, []int64{2, 1, 4}, []int64{d.TopHotspots[0].SensorID, d.TopHotspots[1].SensorID, d.TopHotspots[2].SensorID})
	assert.Equal(t, RiskHigh, d.TopHotspots[0].RiskLabel)
	assert.Equal(t, "Sensor 2", d.TopHotspots[0].LocationName)
	assert.Equal(t, "Market Square", d.TopHotspots[1].LocationName)
	assert.InDelta(t, 6, *d.TopHotspots[0].ThresholdExceedanceC, 1e-9)
	assert.InDelta(t, 0, *d.TopHotspots[2].ThresholdExceedanceC, 1e-9)
	assert.Equal(t, TrendWorsening, d.TopHotspots[1].Trend24h)

	city := d.HeatRisk.CityNow
	assert.Equal(t, 3, city.TotalReportingSensors)
	assert.Equal(t, 1, city.HighSensors)
	assert.Equal(t, 1, city.ElevatedSensors)
	assert.InDelta(t, 77.0/3, *city.MeanC, 1e-9)
	assert.Equal(t, RiskNormal, city.RiskLabel)
	assert.Equal(t, HeatHighC, d.Thresholds.HighC)
}

func TestTemperatureDashboard_MissingValuesSortLast(t *testing.T) {
	agg := NewAggregator(time.UTC)
	rows := []models.Reading{
		reading(1, time.Hour, nil, f(50)),
		reading(2, time.Hour, f(10), nil),
	}
	d := agg.Temperature(rows, now, 5)
	require.Len(t, d.TopHotspots, 2)
	assert.Equal(t, int64(2), d.TopHotspots[0].SensorID)
	assert.Nil(t, d.TopHotspots[1].CurrentC)
	assert.Nil(t, d.TopHotspots[1].ThresholdExceedanceC)
	assert.Equal(t, TrendUnknown, d.TopHotspots[1].RiskLabel)
}

func TestNoiseDashboard(t *testing.T) {
	agg := NewAggregator(toronto(t))
	rows := []models.Reading{
		reading(1, time.Hour, nil, f(70)),
		reading(2, time.Hour, nil, f(60)),
		reading(3, time.Hour, nil, nil),
	}

	d := agg.Noise(rows, now, 5)
	assert.Equal(t, NoiseDayDB, d.Thresholds.CurrentDB)
	assert.Equal(t, "2024-07-15T14:30:00-04:00", d.NowLocal)
	require.Len(t, d.NoiseViolations, 1)
	assert.Equal(t, int64(1), d.NoiseViolations[0].SensorID)
	assert.InDelta(t, 5, *d.NoiseViolations[0].ThresholdExceedanceDB, 1e-9)
	require.Len(t, d.TopHotspots, 3)
	assert.Equal(t, int64(3), d.TopHotspots[2].SensorID)

	night := agg.Noise(rows, time.Date(2024, 7, 16, 3, 0, 0, 0, time.UTC), 5) // 23:00 EDT
	assert.Equal(t, NoiseNightDB, night.Thresholds.CurrentDB)
}
