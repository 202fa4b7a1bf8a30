package usecase

import (
	"context"
	"fmt"
	"time"

	"EnviroPulse/internal/domain/models"
	drepo "EnviroPulse/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// ReadingProcessor routes readings to the configured backend.
type ReadingProcessor struct {
	pub     drepo.ReadingPublisher
	store   drepo.ReadingStore
	feed    drepo.LiveFeed
	metrics drepo.Metrics
	backend string
}

// NewReadingProcessor creates a processor. pub may be nil unless backend is
// kafka; feed may be nil.
func NewReadingProcessor(
	pub drepo.ReadingPublisher,
	store drepo.ReadingStore,
	feed drepo.LiveFeed,
	metrics drepo.Metrics,
	backend string,
) *ReadingProcessor {
	return &ReadingProcessor{
		pub:     pub,
		store:   store,
		feed:    feed,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single reading.
func (p *ReadingProcessor) Process(ctx context.Context, r *models.RawReading) error {
	if r == nil {
		return fmt.Errorf("reading is nil")
	}
	return p.ProcessBatch(ctx, []*models.RawReading{r})
}

// ProcessBatch routes readings in one write. With the clickhouse backend the
// rows are stored and pushed to the live feed here; with kafka the consumer
// does both.
func (p *ReadingProcessor) ProcessBatch(ctx context.Context, rows []*models.RawReading) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case BackendKafka:
		if p.pub == nil {
			err = fmt.Errorf("kafka backend has no publisher")
		} else {
			err = p.pub.PublishBatch(ctx, rows)
		}
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, rows)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, r := range rows {
		p.metrics.RecordIngested(p.backend, r.SensorID)
		if p.backend == BackendClickHouse {
			recordLastValues(p.metrics, r)
			if p.feed != nil {
				p.feed.PublishReading(r)
			}
		}
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *ReadingProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

func recordLastValues(m drepo.Metrics, r *models.RawReading) {
	for _, mv := range []struct {
		metric models.Metric
		v      *float64
	}{
		{models.MetricCelsius, r.Celsius},
		{models.MetricAverageDB, r.AverageDB},
		{models.MetricMaxDB, r.MaxDB},
	} {
		if mv.v != nil {
			m.RecordLastValue(r.SensorID, string(mv.metric), *mv.v)
		}
	}
}
