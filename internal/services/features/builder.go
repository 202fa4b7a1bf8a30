package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"EnviroPulse/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Row holds the features of the most recent observation. Undefined values
// are stored as NaN.
type Row struct {
	At     time.Time
	values map[string]float64
}

// Get returns the value of name; ok is false when the feature is undefined.
func (r Row) Get(name string) (float64, bool) {
	v, found := r.values[name]
	if !found || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Select returns the values of cols in order, plus the names of columns
// that are undefined in this row.
func (r Row) Select(cols []string) ([]float64, []string) {
	out := make([]float64, len(cols))
	var missing []string
	for i, c := range cols {
		v, ok := r.Get(c)
		if !ok {
			missing = append(missing, c)
		}
		out[i] = v
	}
	return out, missing
}

// Builder derives calendar, lag and rolling features from one sensor's history.
type Builder struct {
	loc *time.Location
}

// NewBuilder creates a Builder computing calendar features in loc.
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{loc: loc}
}

// Build computes the feature row at the last reading of history. History
// must belong to a single sensor; it is sorted by timestamp (stable) before use.
func (b *Builder) Build(history []models.Reading, schema Schema, horizonMin int) (Row, error) {
	if len(history) == 0 {
		return Row{}, models.NewForecastError(models.KindNoHistory, "history is empty")
	}
	if err := schema.Validate(); err != nil {
		return Row{}, fmt.Errorf("feature schema: %w", err)
	}

	rows := make([]models.Reading, len(history))
	copy(rows, history)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	series := make([]float64, len(rows))
	for i := range rows {
		v, ok := rows[i].Value(schema.Target)
		if !ok {
			v = math.NaN()
		}
		series[i] = v
	}

	last := rows[len(rows)-1].Timestamp
	values := make(map[string]float64, len(schema.Names()))
	b.addCalendar(values, last)

	n := len(series)
	for _, lag := range schema.LagsMin {
		values[LagName(schema.Target, lag)] = lagAt(series, n-1, lag/schema.CadenceMin)
	}
	for _, win := range schema.WindowsMin {
		mean, std := rollingAt(series, n-1, win/schema.CadenceMin)
		values[RollMeanName(schema.Target, win)] = mean
		values[RollStdName(schema.Target, win)] = std
	}
	values[HorizonMin] = float64(horizonMin)

	return Row{At: last, values: values}, nil
}

func (b *Builder) addCalendar(values map[string]float64, ts time.Time) {
	local := ts.In(b.loc)
	hour := float64(local.Hour())
	minute := float64(local.Minute())
	dow := (int(local.Weekday()) + 6) % 7 // Monday = 0

	values[Hour] = hour
	values[Minute] = minute
	values[DayOfWeek] = float64(dow)
	values[IsWeekend] = 0
	if dow >= 5 {
		values[IsWeekend] = 1
	}
	values[HourSin] = math.Sin(2 * math.Pi * hour / 24.0)
	values[HourCos] = math.Cos(2 * math.Pi * hour / 24.0)
	values[MinSin] = math.Sin(2 * math.Pi * minute / 60.0)
	values[MinCos] = math.Cos(2 * math.Pi * minute / 60.0)
}

// lagAt returns series[i-steps], NaN when out of range.
func lagAt(series []float64, i, steps int) float64 {
	j := i - steps
	if j < 0 {
		return math.NaN()
	}
	return series[j]
}

// rollingAt computes mean and sample std over the steps values strictly
// before index i. Any missing value in the window leaves both undefined.
func rollingAt(series []float64, i, steps int) (float64, float64) {
	start := i - steps
	if steps < 1 || start < 0 {
		return math.NaN(), math.NaN()
	}
	window := series[start:i]
	for _, v := range window {
		if math.IsNaN(v) {
			return math.NaN(), math.NaN()
		}
	}
	mean := stat.Mean(window, nil)
	if steps < 2 {
		return mean, math.NaN()
	}
	return mean, stat.StdDev(window, nil)
}
