package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"EnviroPulse/internal/domain/models"
	pkgkafka "EnviroPulse/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestInsertStatement(t *testing.T) {
	s := NewCHReadingStore(nil, "enviropulse.sensor_readings", 0)
	s.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

	q, args := s.insertStatement([]*models.RawReading{
		{EventID: "e1", SensorID: 1, TsUTC: "2024-07-01T11:59:00Z", Celsius: f(21.5)},
		nil,
		{EventID: "e2", SensorID: 2, TsUTC: "2024-07-01T11:59:00Z", CreatedAt: "2024-07-01T11:59:01Z", AverageDB: f(55)},
	})
	assert.Contains(t, q, "INSERT INTO enviropulse.sensor_readings (event_id, sensor_id")
	assert.Contains(t, q, "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	require.Len(t, args, 20)
	assert.Equal(t, "2024-07-01T12:00:00Z", args[6])
	assert.Nil(t, args[7])
	assert.Equal(t, 21.5, args[9])
	assert.Equal(t, "2024-07-01T11:59:01Z", args[16])
}

func TestRangeStatement(t *testing.T) {
	s := NewCHReadingStore(nil, "readings", 0)
	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	q, args, err := s.rangeStatement(from, to, []int64{3, 1}, "created_at")
	require.NoError(t, err)
	assert.Contains(t, q, "WHERE created >= ? AND created <= ? AND sensor_id IN (?, ?)")
	assert.Contains(t, q, "ORDER BY sensor_id ASC, created ASC")
	assert.Equal(t, []interface{}{from, to, int64(3), int64(1)}, args)

	q, args, err = s.rangeStatement(from, to, nil, "ts_utc")
	require.NoError(t, err)
	assert.NotContains(t, q, "IN (")
	assert.Len(t, args, 2)

	_, _, err = s.rangeStatement(from, to, nil, "inserted_at")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestHistoryStatement_KeepsNewestRows(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	s := NewCHReadingStore(nil, "readings", 0)
	s.now = func() time.Time { return now }

	q, args := s.historyStatement(4, 336*time.Hour, 50000)
	assert.Contains(t, q, "WHERE sensor_id = ? AND ts >= ? AND ts <= ?")
	assert.Contains(t, q, "ORDER BY ts DESC")
	assert.NotContains(t, q, "ORDER BY ts ASC")
	assert.Equal(t, []interface{}{int64(4), now.Add(-336 * time.Hour), now, 50000}, args)

	// Rows arrive newest first and are handed back ascending.
	rows := []models.RawReading{
		{EventID: "c", TsUTC: "2024-07-15T12:00:00Z"},
		{EventID: "b", TsUTC: "2024-07-15T11:59:50Z"},
		{EventID: "a", TsUTC: "2024-07-15T11:59:40Z"},
	}
	reverseReadings(rows)
	assert.Equal(t, "a", rows[0].EventID)
	assert.Equal(t, "b", rows[1].EventID)
	assert.Equal(t, "c", rows[2].EventID)

	reverseReadings(nil)
}

type fakeRow struct{ vals []interface{} }

func (r fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *int64:
			*p = r.vals[i].(int64)
		case *sql.NullFloat64:
			if r.vals[i] == nil {
				*p = sql.NullFloat64{}
			} else {
				*p = sql.NullFloat64{Float64: r.vals[i].(float64), Valid: true}
			}
		default:
			return errors.New("unexpected dest")
		}
	}
	return nil
}

func TestScanReading(t *testing.T) {
	r, err := scanReading(fakeRow{vals: []interface{}{
		"e1", int64(4), "Market Square", 43.65, nil, "2024-07-01T11:59:00Z", "", nil, 70.2, 21.0,
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.SensorID)
	require.NotNil(t, r.Lat)
	assert.Equal(t, 43.65, *r.Lat)
	assert.Nil(t, r.Lon)
	assert.Nil(t, r.AverageDB)
	assert.Equal(t, 70.2, *r.MaxDB)
	assert.Equal(t, 21.0, *r.Celsius)
}

func TestReadingsSchema(t *testing.T) {
	ddl := ReadingsSchema("enviropulse.sensor_readings")
	require.Len(t, ddl, 1)
	assert.Contains(t, ddl[0], "CREATE TABLE IF NOT EXISTS enviropulse.sensor_readings")
	assert.Contains(t, ddl[0], "parseDateTime64BestEffortOrZero(ts_utc, 3, 'UTC')")
}

type recordingProducer struct {
	topic string
	keys  []string
	vals  []interface{}
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic = topic
	p.keys = append(p.keys, string(key))
	p.vals = append(p.vals, value)
	return nil
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	for _, m := range msgs {
		p.keys = append(p.keys, string(m.Key))
		p.vals = append(p.vals, m.Value)
	}
	return nil
}

func TestKafkaPublishers_KeyBySensor(t *testing.T) {
	rp := &recordingProducer{}
	pub := &KafkaPublisher{producer: rp, topic: "sensor-readings"}
	require.NoError(t, pub.PublishBatch(context.Background(), []*models.RawReading{{SensorID: 3}, nil, {SensorID: 12}}))
	assert.Equal(t, "sensor-readings", rp.topic)
	assert.Equal(t, []string{"3", "12"}, rp.keys)

	fp := &recordingProducer{}
	fpub := &KafkaForecastPublisher{producer: fp, topic: "forecasts"}
	ev := &models.ForecastEvent{EventID: "x", Result: models.PredictionResult{SensorID: 9}}
	require.NoError(t, fpub.PublishForecast(context.Background(), ev))
	assert.Equal(t, []string{"9"}, fp.keys)
	b, err := json.Marshal(fp.vals[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"event_id":"x"`)
}

func TestFileBundleStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileBundleStore(dir)
	p := s.Locate("celsius")
	assert.Equal(t, filepath.Join(dir, "celsius_bundle.json"), p)

	_, err := s.Read(context.Background(), p)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, os.WriteFile(p, []byte(`{}`), 0o600))
	data, err := s.Read(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

type mapGetter map[string][]byte

func (m mapGetter) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m[key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return b, nil
}

func TestObjectBundleStore(t *testing.T) {
	s := &ObjectBundleStore{client: mapGetter{"bundles/v3/average_db_bundle.json": []byte("x")}, prefix: "bundles/v3"}
	key := s.Locate("average_db")
	assert.Equal(t, "bundles/v3/average_db_bundle.json", key)

	data, err := s.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	_, err = s.Read(context.Background(), s.Locate("celsius"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
