// Package timenorm anchors timestamps to UTC.
//
// Future instants supplied by callers are expected in local civil time when
// they carry no offset ("predict at 6pm tomorrow"), so naive input is read in
// the deployment zone. History rows come from a ts_utc column, so naive
// history values are read as UTC.
package timenorm

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/pkg/util"
)

// DefaultZone is the operating region of the sensor network.
const DefaultZone = "America/Toronto"

const defaultSampleLimit = 5

// Normalizer resolves raw timestamps to absolute UTC instants.
type Normalizer struct {
	loc         *time.Location
	sampleLimit int
}

// Option configures Normalizer.
type Option func(*Normalizer)

// WithSampleLimit caps the number of offending values reported in errors.
func WithSampleLimit(n int) Option {
	return func(n2 *Normalizer) {
		if n > 0 {
			n2.sampleLimit = n
		}
	}
}

// New creates a Normalizer for the named IANA zone.
func New(zone string, opts ...Option) (*Normalizer, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zone, err)
	}
	n := &Normalizer{loc: loc, sampleLimit: defaultSampleLimit}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Location returns the local civil zone used for naive input and calendar features.
func (n *Normalizer) Location() *time.Location { return n.loc }

// ResolveFuture parses a requested future instant. Naive values are
// interpreted in the local zone and must name exactly one instant there, so
// wall times skipped or repeated by a DST change are rejected.
func (n *Normalizer) ResolveFuture(s string) (time.Time, error) {
	t, _, err := util.ResolveTimestamp(s, n.loc)
	switch {
	case errors.Is(err, util.ErrNonexistentLocalTime):
		return time.Time{}, models.InvalidTimestampError(fmt.Sprintf("future time (does not exist in %s)", n.loc), []string{s})
	case errors.Is(err, util.ErrAmbiguousLocalTime):
		return time.Time{}, models.InvalidTimestampError(fmt.Sprintf("future time (ambiguous in %s)", n.loc), []string{s})
	case err != nil:
		return time.Time{}, models.InvalidTimestampError("future time", []string{s})
	}
	return t.UTC(), nil
}

// NormalizeHistory converts raw rows to readings. Any unparseable timestamp
// fails the whole batch.
func (n *Normalizer) NormalizeHistory(rows []models.RawReading) ([]models.Reading, error) {
	out := make([]models.Reading, 0, len(rows))
	var bad []string
	for i := range rows {
		t, _, ok := util.ParseTimestamp(rows[i].TsUTC, time.UTC)
		if !ok {
			if len(bad) < n.sampleLimit {
				bad = append(bad, rows[i].TsUTC)
			}
			continue
		}
		out = append(out, toReading(&rows[i], t))
	}
	if len(bad) > 0 {
		return nil, models.InvalidTimestampError("ts_utc values in history", bad)
	}
	return out, nil
}

// NormalizeBestEffort converts raw rows, skipping unparseable timestamps.
func (n *Normalizer) NormalizeBestEffort(rows []models.RawReading) ([]models.Reading, int) {
	out := make([]models.Reading, 0, len(rows))
	skipped := 0
	for i := range rows {
		t, _, ok := util.ParseTimestamp(rows[i].TsUTC, time.UTC)
		if !ok {
			skipped++
			continue
		}
		out = append(out, toReading(&rows[i], t))
	}
	return out, skipped
}

func toReading(r *models.RawReading, t time.Time) models.Reading {
	return models.Reading{
		SensorID:     r.SensorID,
		Timestamp:    t.UTC(),
		LocationName: r.LocationName,
		Lat:          r.Lat,
		Lon:          r.Lon,
		AverageDB:    r.AverageDB,
		MaxDB:        r.MaxDB,
		Celsius:      r.Celsius,
	}
}
