package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/pkg/util"

	"gonum.org/v1/gonum/stat"
)

// Thresholds are proxies: temperature only (no humidex) and measured dBA
// against a day/night cutoff.
const (
	HeatElevatedC = 26.0
	HeatHighC     = 31.0

	NoiseDayStartHour   = 7
	NoiseNightStartHour = 21
	NoiseDayDB          = 65.0
	NoiseNightDB        = 55.0

	TrendEps = 0.15
)

const (
	TrendStable    = "Stable"
	TrendWorsening = "Worsening"
	TrendImproving = "Improving"
	TrendUnknown   = "Unknown"

	RiskNormal   = "Normal"
	RiskElevated = "Elevated"
	RiskHigh     = "High"
)

// Mean returns nil for an empty slice.
func Mean(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	m := stat.Mean(vals, nil)
	return &m
}

func TrendLabel(curr, prev *float64) string {
	if curr == nil || prev == nil {
		return TrendUnknown
	}
	delta := *curr - *prev
	if math.Abs(delta) <= TrendEps {
		return TrendStable
	}
	if delta > 0 {
		return TrendWorsening
	}
	return TrendImproving
}

func HeatRiskLabel(tempC *float64) string {
	switch {
	case tempC == nil:
		return TrendUnknown
	case *tempC >= HeatHighC:
		return RiskHigh
	case *tempC >= HeatElevatedC:
		return RiskElevated
	default:
		return RiskNormal
	}
}

// NoiseThreshold returns the violation cutoff in force at local time t.
func NoiseThreshold(local time.Time) float64 {
	h := local.Hour()
	if h >= NoiseNightStartHour || h < NoiseDayStartHour {
		return NoiseNightDB
	}
	return NoiseDayDB
}

// WindowPair holds the mean of the current window and of the one before it.
type WindowPair struct {
	Current  *float64
	Previous *float64
}

func (w WindowPair) Trend() string { return TrendLabel(w.Current, w.Previous) }

// WindowMeans compares [now-span, now] with [now-2*span, now-span], both inclusive.
func WindowMeans(rows []models.Reading, metric string, now time.Time, span time.Duration) WindowPair {
	return WindowPair{
		Current:  meanIn(rows, metric, now.Add(-span), now),
		Previous: meanIn(rows, metric, now.Add(-2*span), now.Add(-span)),
	}
}

func meanIn(rows []models.Reading, metric string, start, end time.Time) *float64 {
	var vals []float64
	for _, r := range rows {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		if v, ok := r.Value(metric); ok {
			vals = append(vals, v)
		}
	}
	return Mean(vals)
}

// LatestPerSensor keeps the newest reading of every sensor; on equal
// timestamps the later row wins.
func LatestPerSensor(rows []models.Reading) map[int64]models.Reading {
	latest := make(map[int64]models.Reading)
	for _, r := range rows {
		prev, ok := latest[r.SensorID]
		if !ok || !r.Timestamp.Before(prev.Timestamp) {
			latest[r.SensorID] = r
		}
	}
	return latest
}

// GroupBySensor splits rows by sensor, keeping input order.
func GroupBySensor(rows []models.Reading) map[int64][]models.Reading {
	out := make(map[int64][]models.Reading)
	for _, r := range rows {
		out[r.SensorID] = append(out[r.SensorID], r)
	}
	return out
}

// Aggregator computes dashboard views in a local civil zone.
type Aggregator struct {
	loc   *time.Location
	hours int
}

func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc, hours: 24}
}

// BucketHourly averages metric per local hour over the last hours before now.
// Empty hours are omitted.
func (a *Aggregator) BucketHourly(rows []models.Reading, metric string, now time.Time) []models.SeriesPoint {
	start := now.Add(-time.Duration(a.hours) * time.Hour)
	buckets := make(map[int64][]float64)
	for _, r := range rows {
		if r.Timestamp.Before(start) || r.Timestamp.After(now) {
			continue
		}
		v, ok := r.Value(metric)
		if !ok {
			continue
		}
		h := util.TruncateHourIn(r.Timestamp, a.loc).UnixMilli()
		buckets[h] = append(buckets[h], v)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]models.SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.SeriesPoint{T: k, Value: *Mean(buckets[k])})
	}
	return out
}

// HeatRiskSeries counts, for every local hour of the window, the sensors
// whose hourly mean temperature falls in each band. Hours without data are
// reported with zero counts.
func (a *Aggregator) HeatRiskSeries(rows []models.Reading, now time.Time) []models.HeatRiskPoint {
	start := now.Add(-time.Duration(a.hours) * time.Hour)
	buckets := make(map[int64]map[int64][]float64)
	for _, r := range rows {
		if r.Timestamp.Before(start) || r.Timestamp.After(now) {
			continue
		}
		v, ok := r.Value(string(models.MetricCelsius))
		if !ok {
			continue
		}
		h := util.TruncateHourIn(r.Timestamp, a.loc).UnixMilli()
		if buckets[h] == nil {
			buckets[h] = make(map[int64][]float64)
		}
		buckets[h][r.SensorID] = append(buckets[h][r.SensorID], v)
	}

	var out []models.HeatRiskPoint
	end := util.TruncateHourIn(now, a.loc)
	for h := util.TruncateHourIn(start, a.loc); !h.After(end); h = h.Add(time.Hour) {
		p := models.HeatRiskPoint{T: h.UnixMilli()}
		for _, vals := range buckets[p.T] {
			m := Mean(vals)
			if m == nil {
				continue
			}
			p.Total++
			if *m >= HeatHighC {
				p.High++
			} else if *m >= HeatElevatedC {
				p.Elevated++
			}
		}
		out = append(out, p)
	}
	return out
}

// Temperature builds the heat dashboard from the last 48h of readings.
func (a *Aggregator) Temperature(rows []models.Reading, now time.Time, topN int) models.TemperatureDashboard {
	metric := string(models.MetricCelsius)
	latest := LatestPerSensor(rows)
	bySensor := GroupBySensor(rows)

	var temps []float64
	city := models.CityHeatRisk{}
	hotspots := make([]models.TemperatureHotspot, 0, len(latest))
	for _, sid := range sortedIDs(latest) {
		lr := latest[sid]
		cur := valuePtr(lr, metric)
		if cur != nil {
			city.TotalReportingSensors++
			temps = append(temps, *cur)
			if *cur >= HeatHighC {
				city.HighSensors++
			} else if *cur >= HeatElevatedC {
				city.ElevatedSensors++
			}
		}

		hs := models.TemperatureHotspot{
			SensorID:      sid,
			LocationName:  locationName(lr),
			Lat:           lr.Lat,
			Lon:           lr.Lon,
			CurrentC:      cur,
			RiskLabel:     HeatRiskLabel(cur),
			LastUpdateUTC: lr.Timestamp.UTC().Format(time.RFC3339),
			Trend6h:       WindowMeans(bySensor[sid], metric, now, 6*time.Hour).Trend(),
			Trend24h:      WindowMeans(bySensor[sid], metric, now, 24*time.Hour).Trend(),
		}
		if cur != nil {
			ex := math.Max(0, *cur-HeatElevatedC)
			hs.ThresholdExceedanceC = &ex
		}
		hotspots = append(hotspots, hs)
	}
	city.MeanC = Mean(temps)
	city.RiskLabel = HeatRiskLabel(city.MeanC)

	sort.SliceStable(hotspots, func(i, j int) bool { return descNilLast(hotspots[i].CurrentC, hotspots[j].CurrentC) })
	if len(hotspots) > topN {
		hotspots = hotspots[:topN]
	}

	return models.TemperatureDashboard{
		NowUTC: now.UTC(),
		Thresholds: models.TemperatureThresholds{
			ElevatedC: HeatElevatedC,
			HighC:     HeatHighC,
			Note:      "Temp-only proxy (no humidity/humidex available).",
		},
		HeatRisk: models.HeatRisk{
			CityNow:   city,
			Series24h: a.HeatRiskSeries(rows, now),
			Note:      "Counts use per-sensor hourly mean temperature; thresholds are proxy cutoffs.",
		},
		TopHotspots: hotspots,
		Trend: models.Trend{
			City6h:  WindowMeans(rows, metric, now, 6*time.Hour).Trend(),
			City24h: WindowMeans(rows, metric, now, 24*time.Hour).Trend(),
		},
		Series24h: a.BucketHourly(rows, metric, now),
	}
}

// Noise builds the noise dashboard; the violation cutoff depends on the
// local time of now.
func (a *Aggregator) Noise(rows []models.Reading, now time.Time, topN int) models.NoiseDashboard {
	metric := string(models.MetricAverageDB)
	local := now.In(a.loc)
	threshold := NoiseThreshold(local)
	latest := LatestPerSensor(rows)
	bySensor := GroupBySensor(rows)

	hotspots := make([]models.NoiseHotspot, 0, len(latest))
	violations := make([]models.NoiseHotspot, 0)
	for _, sid := range sortedIDs(latest) {
		lr := latest[sid]
		cur := valuePtr(lr, metric)
		hs := models.NoiseHotspot{
			SensorID:      sid,
			LocationName:  locationName(lr),
			Lat:           lr.Lat,
			Lon:           lr.Lon,
			CurrentAvgDB:  cur,
			ThresholdDB:   threshold,
			LastUpdateUTC: lr.Timestamp.UTC().Format(time.RFC3339),
			Trend24h:      WindowMeans(bySensor[sid], metric, now, 24*time.Hour).Trend(),
		}
		if cur != nil {
			ex := math.Max(0, *cur-threshold)
			hs.ThresholdExceedanceDB = &ex
			hs.IsViolationProxy = *cur >= threshold
		}
		hotspots = append(hotspots, hs)
		if hs.IsViolationProxy {
			violations = append(violations, hs)
		}
	}

	sort.SliceStable(hotspots, func(i, j int) bool { return descNilLast(hotspots[i].CurrentAvgDB, hotspots[j].CurrentAvgDB) })
	if len(hotspots) > topN {
		hotspots = hotspots[:topN]
	}

	return models.NoiseDashboard{
		NowUTC:   now.UTC(),
		NowLocal: local.Format(time.RFC3339),
		Thresholds: models.NoiseThresholds{
			DayDB:     NoiseDayDB,
			NightDB:   NoiseNightDB,
			CurrentDB: threshold,
			Note:      "Proxy based on measured dBA and day/night cutoffs.",
		},
		TopHotspots:     hotspots,
		NoiseViolations: violations,
		Trend:           models.Trend{City24h: WindowMeans(rows, metric, now, 24*time.Hour).Trend()},
		Series24h:       a.BucketHourly(rows, metric, now),
	}
}

func valuePtr(r models.Reading, metric string) *float64 {
	v, ok := r.Value(metric)
	if !ok {
		return nil
	}
	return &v
}

func locationName(r models.Reading) string {
	if r.LocationName != "" {
		return r.LocationName
	}
	return fmt.Sprintf("Sensor %d", r.SensorID)
}

func sortedIDs(m map[int64]models.Reading) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// descNilLast orders values descending with missing values at the end.
func descNilLast(a, b *float64) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}
