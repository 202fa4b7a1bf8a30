package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
)

// latestScanLimit bounds the newest-rows scan used to find each sensor's
// latest row.
const latestScanLimit = 5000

// SensorsUseCase serves sensor metadata and raw row queries.
type SensorsUseCase struct {
	query domrepo.ReadingQuery
}

func NewSensorsUseCase(query domrepo.ReadingQuery) *SensorsUseCase {
	return &SensorsUseCase{query: query}
}

type RangeParams struct {
	SensorIDs  []int64
	From       time.Time
	To         time.Time
	TimeColumn string
}

// ListSensors returns the metadata of each sensor's newest row, by id.
func (uc *SensorsUseCase) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	latest, err := uc.latest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Sensor, len(latest))
	for i, r := range latest {
		out[i] = models.Sensor{SensorID: r.SensorID, LocationName: r.LocationName, Lat: r.Lat, Lon: r.Lon}
	}
	return out, nil
}

// Latest returns each sensor's newest row, by id.
func (uc *SensorsUseCase) Latest(ctx context.Context) (*models.SensorRows, error) {
	latest, err := uc.latest(ctx)
	if err != nil {
		return nil, err
	}
	return &models.SensorRows{Count: len(latest), Rows: latest}, nil
}

func (uc *SensorsUseCase) latest(ctx context.Context) ([]models.RawReading, error) {
	rows, err := uc.query.Recent(ctx, latestScanLimit)
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	seen := make(map[int64]bool)
	out := make([]models.RawReading, 0)
	for _, r := range rows {
		if seen[r.SensorID] {
			continue
		}
		seen[r.SensorID] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out, nil
}

// Series returns one sensor's rows between From and To, ascending.
func (uc *SensorsUseCase) Series(ctx context.Context, sensorID int64, p RangeParams) (*models.SensorSeries, error) {
	p.SensorIDs = []int64{sensorID}
	rows, err := uc.rangeRows(ctx, &p)
	if err != nil {
		return nil, err
	}
	return &models.SensorSeries{
		SensorID:   sensorID,
		Start:      p.From.Format(time.RFC3339Nano),
		End:        p.To.Format(time.RFC3339Nano),
		TimeColumn: p.TimeColumn,
		Count:      len(rows),
		Rows:       rows,
	}, nil
}

// Range returns rows of the given sensors, all when none are given, grouped
// by sensor id.
func (uc *SensorsUseCase) Range(ctx context.Context, p RangeParams) (*models.SensorRange, error) {
	rows, err := uc.rangeRows(ctx, &p)
	if err != nil {
		return nil, err
	}
	res := &models.SensorRange{
		Start:      p.From.Format(time.RFC3339Nano),
		End:        p.To.Format(time.RFC3339Nano),
		TimeColumn: p.TimeColumn,
		Count:      len(rows),
		BySensor:   make(map[string][]models.RawReading),
	}
	for _, r := range rows {
		k := strconv.FormatInt(r.SensorID, 10)
		res.BySensor[k] = append(res.BySensor[k], r)
	}
	return res, nil
}

func (uc *SensorsUseCase) rangeRows(ctx context.Context, p *RangeParams) ([]models.RawReading, error) {
	if p.From.After(p.To) {
		return nil, models.InvalidArgumentf("start must be <= end")
	}
	if p.TimeColumn == "" {
		p.TimeColumn = "ts_utc"
	}
	rows, err := uc.query.Range(ctx, p.From, p.To, p.SensorIDs, p.TimeColumn)
	if err != nil {
		return nil, fmt.Errorf("range readings: %w", err)
	}
	if rows == nil {
		rows = []models.RawReading{}
	}
	return rows, nil
}
