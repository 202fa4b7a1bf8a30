package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	applogger "EnviroPulse/pkg/logger"
)

const readingColumns = "event_id, sensor_id, location_name, lat, lon, ts_utc, created_at, average_db, max_db, celsius"

// timeColumns maps the public time column names to the parsed DateTime64
// columns the table materializes from them.
var timeColumns = map[string]string{
	"ts_utc":     "ts",
	"created_at": "created",
}

// ReadingsSchema returns the DDL for the readings table. Timestamps are kept
// as received and parsed into materialized columns for filtering.
func ReadingsSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            event_id      String,
            sensor_id     Int64,
            location_name String,
            lat           Nullable(Float64),
            lon           Nullable(Float64),
            ts_utc        String,
            created_at    String,
            average_db    Nullable(Float64),
            max_db        Nullable(Float64),
            celsius       Nullable(Float64),
            ts      DateTime64(3, 'UTC') MATERIALIZED parseDateTime64BestEffortOrZero(ts_utc, 3, 'UTC'),
            created DateTime64(3, 'UTC') MATERIALIZED parseDateTime64BestEffortOrZero(created_at, 3, 'UTC')
        ) ENGINE = ReplacingMergeTree
        ORDER BY (sensor_id, ts, event_id)`, table)}
}

// CHReadingStore implements the reading store, history source and query
// repositories over one ClickHouse table.
type CHReadingStore struct {
	db        *sql.DB
	table     string
	batchSize int
	now       func() time.Time
	l         *applogger.Logger
}

var (
	_ domrepo.ReadingStore  = (*CHReadingStore)(nil)
	_ domrepo.HistorySource = (*CHReadingStore)(nil)
	_ domrepo.ReadingQuery  = (*CHReadingStore)(nil)
)

func NewCHReadingStore(db *sql.DB, table string, batchSize int) *CHReadingStore {
	if batchSize <= 0 {
		batchSize = 2000
	}
	return &CHReadingStore{db: db, table: table, batchSize: batchSize, now: time.Now}
}

// SetLogger injects a structured logger.
func (s *CHReadingStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHReadingStore) Store(ctx context.Context, r *models.RawReading) error {
	return s.StoreBatch(ctx, []*models.RawReading{r})
}

// StoreBatch inserts rows with multi-row VALUES, batchSize rows per statement.
// Nil rows are skipped.
func (s *CHReadingStore) StoreBatch(ctx context.Context, rows []*models.RawReading) error {
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		q, args := s.insertStatement(rows[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logErr("clickhouse insert error", err, applogger.Int("rows", end-start))
			return fmt.Errorf("insert readings: %w", err)
		}
	}
	return nil
}

func (s *CHReadingStore) insertStatement(rows []*models.RawReading) (string, []interface{}) {
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*10)
	created := s.now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		if r == nil {
			continue
		}
		ca := r.CreatedAt
		if ca == "" {
			ca = created
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.EventID,
			r.SensorID,
			r.LocationName,
			nullable(r.Lat),
			nullable(r.Lon),
			r.TsUTC,
			ca,
			nullable(r.AverageDB),
			nullable(r.MaxDB),
			nullable(r.Celsius),
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, readingColumns, strings.Join(values, ","))
	return q, args
}

// FetchHistory returns one sensor's rows with ts_utc in [now-lookback, now],
// ascending. When the window holds more than limit rows the newest limit
// rows are kept.
func (s *CHReadingStore) FetchHistory(ctx context.Context, sensorID int64, lookback time.Duration, limit int) ([]models.RawReading, error) {
	q, args := s.historyStatement(sensorID, lookback, limit)
	rows, err := s.query(ctx, "fetch_history", q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	reverseReadings(rows)
	return rows, nil
}

// historyStatement selects newest first so LIMIT drops the oldest rows.
func (s *CHReadingStore) historyStatement(sensorID int64, lookback time.Duration, limit int) (string, []interface{}) {
	now := s.now().UTC()
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE sensor_id = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT ?`, readingColumns, s.table)
	return q, []interface{}{sensorID, now.Add(-lookback), now, limit}
}

func reverseReadings(rows []models.RawReading) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func (s *CHReadingStore) Window(ctx context.Context, from, to time.Time, limit int) ([]models.RawReading, error) {
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT ?`, readingColumns, s.table)
	rows, err := s.query(ctx, "window", q, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	return rows, nil
}

func (s *CHReadingStore) Range(ctx context.Context, from, to time.Time, sensorIDs []int64, timeColumn string) ([]models.RawReading, error) {
	q, args, err := s.rangeStatement(from, to, sensorIDs, timeColumn)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "range", q, args...)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	return rows, nil
}

func (s *CHReadingStore) rangeStatement(from, to time.Time, sensorIDs []int64, timeColumn string) (string, []interface{}, error) {
	col, ok := timeColumns[timeColumn]
	if !ok {
		return "", nil, models.InvalidArgumentf("time_column must be ts_utc or created_at, got %q", timeColumn)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s >= ? AND %s <= ?", readingColumns, s.table, col, col)
	args := []interface{}{from.UTC(), to.UTC()}
	if len(sensorIDs) > 0 {
		b.WriteString(" AND sensor_id IN (?" + strings.Repeat(", ?", len(sensorIDs)-1) + ")")
		for _, id := range sensorIDs {
			args = append(args, id)
		}
	}
	fmt.Fprintf(&b, " ORDER BY sensor_id ASC, %s ASC", col)
	return b.String(), args, nil
}

func (s *CHReadingStore) Recent(ctx context.Context, limit int) ([]models.RawReading, error) {
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        ORDER BY ts DESC, created DESC
        LIMIT ?`, readingColumns, s.table)
	rows, err := s.query(ctx, "recent", q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return rows, nil
}

func (s *CHReadingStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHReadingStore) Close() error {
	return nil // Managed by pkg
}

func (s *CHReadingStore) query(ctx context.Context, op, q string, args ...interface{}) ([]models.RawReading, error) {
	start := s.now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logErr("clickhouse query error", err, applogger.String("op", op))
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RawReading, 0, 256)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			s.logErr("clickhouse scan error", err, applogger.String("op", op))
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logErr("clickhouse rows error", err, applogger.String("op", op))
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse query",
			applogger.String("op", op),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(sc scanner) (models.RawReading, error) {
	var (
		r                             models.RawReading
		lat, lon, avgDB, maxDB, tempC sql.NullFloat64
	)
	if err := sc.Scan(&r.EventID, &r.SensorID, &r.LocationName, &lat, &lon, &r.TsUTC, &r.CreatedAt, &avgDB, &maxDB, &tempC); err != nil {
		return r, err
	}
	r.Lat = floatPtr(lat)
	r.Lon = floatPtr(lon)
	r.AverageDB = floatPtr(avgDB)
	r.MaxDB = floatPtr(maxDB)
	r.Celsius = floatPtr(tempC)
	return r, nil
}

func (s *CHReadingStore) logErr(msg string, err error, fields ...applogger.Field) {
	if s.l == nil {
		return
	}
	fields = append(fields, applogger.String("table", s.table), applogger.Error(err))
	s.l.Error(msg, fields...)
}

func nullable(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
