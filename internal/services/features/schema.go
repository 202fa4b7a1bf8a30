package features

import (
	"fmt"
	"math"
	"sort"
)

// Default offsets in minutes used when a bundle does not declare its own.
var (
	DefaultLagsMin    = []int{1, 5, 15, 60}
	DefaultWindowsMin = []int{5, 15, 60}
)

// Calendar and request feature names.
const (
	HourSin    = "hour_sin"
	HourCos    = "hour_cos"
	MinSin     = "min_sin"
	MinCos     = "min_cos"
	Hour       = "hour"
	Minute     = "minute"
	DayOfWeek  = "dow"
	IsWeekend  = "is_weekend"
	HorizonMin = "horizon_min"
)

var timeFeatures = []string{Hour, Minute, DayOfWeek, IsWeekend, HourSin, HourCos, MinSin, MinCos}

func LagName(target string, lagMin int) string {
	return fmt.Sprintf("%s_lag_%dm", target, lagMin)
}

func RollMeanName(target string, winMin int) string {
	return fmt.Sprintf("%s_roll_mean_%dm", target, winMin)
}

func RollStdName(target string, winMin int) string {
	return fmt.Sprintf("%s_roll_std_%dm", target, winMin)
}

// Schema fixes the feature contract of one trained model.
type Schema struct {
	Target     string
	CadenceMin int
	LagsMin    []int
	WindowsMin []int
}

// NewSchema builds a schema, falling back to the default offsets for nil slices.
func NewSchema(target string, cadenceMin int, lagsMin, windowsMin []int) Schema {
	if lagsMin == nil {
		lagsMin = DefaultLagsMin
	}
	if windowsMin == nil {
		windowsMin = DefaultWindowsMin
	}
	return Schema{
		Target:     target,
		CadenceMin: cadenceMin,
		LagsMin:    append([]int(nil), lagsMin...),
		WindowsMin: append([]int(nil), windowsMin...),
	}
}

// Validate checks that every offset is a positive whole number of samples.
func (s Schema) Validate() error {
	if s.Target == "" {
		return fmt.Errorf("target is empty")
	}
	if s.CadenceMin < 1 {
		return fmt.Errorf("cadence_min must be >= 1, got %d", s.CadenceMin)
	}
	for _, l := range s.LagsMin {
		if l < 1 || l%s.CadenceMin != 0 {
			return fmt.Errorf("lag %dm is not a positive multiple of cadence %dm", l, s.CadenceMin)
		}
	}
	for _, w := range s.WindowsMin {
		if w < 1 || w%s.CadenceMin != 0 {
			return fmt.Errorf("rolling window %dm is not a positive multiple of cadence %dm", w, s.CadenceMin)
		}
	}
	return nil
}

// Names returns every feature the schema can produce, in a stable order.
func (s Schema) Names() []string {
	out := make([]string, 0, len(timeFeatures)+len(s.LagsMin)+2*len(s.WindowsMin)+1)
	out = append(out, timeFeatures...)
	for _, l := range s.LagsMin {
		out = append(out, LagName(s.Target, l))
	}
	for _, w := range s.WindowsMin {
		out = append(out, RollMeanName(s.Target, w), RollStdName(s.Target, w))
	}
	return append(out, HorizonMin)
}

// Unknown returns the columns of cols the schema cannot produce, sorted.
func (s Schema) Unknown(cols []string) []string {
	known := make(map[string]struct{}, 32)
	for _, n := range s.Names() {
		known[n] = struct{}{}
	}
	var out []string
	for _, c := range cols {
		if _, ok := known[c]; !ok {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// RequiredSamples is the history length at which every lag and rolling
// feature is defined: the largest offset in samples plus the current one.
func (s Schema) RequiredSamples() int {
	if s.CadenceMin < 1 {
		return 0
	}
	maxSteps := 0
	for _, l := range s.LagsMin {
		maxSteps = int(math.Max(float64(maxSteps), float64(l/s.CadenceMin)))
	}
	for _, w := range s.WindowsMin {
		maxSteps = int(math.Max(float64(maxSteps), float64(w/s.CadenceMin)))
	}
	return maxSteps + 1
}

// RequiredMinutes is RequiredSamples expressed at the schema cadence.
func (s Schema) RequiredMinutes() int {
	return s.RequiredSamples() * s.CadenceMin
}
