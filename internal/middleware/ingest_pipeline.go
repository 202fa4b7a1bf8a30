package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	ingestmetrics "EnviroPulse/internal/service/metrics"
	"EnviroPulse/internal/service/ratelimit"
	applogger "EnviroPulse/pkg/logger"
	"EnviroPulse/pkg/util"

	"github.com/google/uuid"
)

// ErrBufferFull is returned when downstream is failing and the retry buffer
// cannot hold the rest of a batch.
var ErrBufferFull = errors.New("ingest buffer full")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	ProcessBatch(ctx context.Context, rows []*models.RawReading) error
}

// IngestResult counts what happened to each submitted reading.
type IngestResult struct {
	Accepted  int      `json:"accepted"`
	Buffered  int      `json:"buffered"`
	Throttled int      `json:"throttled"`
	Rejected  int      `json:"rejected"`
	Dropped   int      `json:"dropped"`
	EventIDs  []string `json:"event_ids"`
}

// IngestPipeline sits between the ingest API and the reading processor.
// It validates, throttles per sensor and buffers when downstream is
// unavailable; buffered rows are retried in batches by a background flusher.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	l       *applogger.Logger

	maxRPS        float64
	bufSize       int
	batchSize     int
	flushInterval time.Duration
	backoffMax    time.Duration

	bufCh   chan *models.RawReading
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max readings per second per sensor. Zero disables throttling.
func WithMaxRPS(rps float64) PipelineOption {
	return func(p *IngestPipeline) {
		if rps >= 0 {
			p.maxRPS = rps
		}
	}
}

// WithBufferSize sets the retry buffer size used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithFlush sets the batch size and interval of buffered retries.
func WithFlush(batchSize int, interval time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if batchSize > 0 {
			p.batchSize = batchSize
		}
		if interval > 0 {
			p.flushInterval = interval
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *IngestPipeline) { p.l = l }
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:          proc,
		metrics:       metrics,
		maxRPS:        10,
		bufSize:       2000,
		batchSize:     500,
		flushInterval: time.Second,
		backoffMax:    5 * time.Second,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.RawReading, p.bufSize)
	if p.maxRPS > 0 {
		p.limiter = ratelimit.New(p.maxRPS, math.Max(1, p.maxRPS))
	}
	ingestmetrics.Register()
	return p
}

// Start launches background flushing of buffered readings.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.flushLoop(ctx)
}

// Stop stops the flusher after one last attempt to deliver buffered rows.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

// Buffered returns the number of readings awaiting retry.
func (p *IngestPipeline) Buffered() int { return len(p.bufCh) }

// Submit validates, throttles and forwards readings in one batch. If
// downstream fails the batch is buffered for retry and still counts as
// accepted; the error is returned only when rows had to be dropped.
func (p *IngestPipeline) Submit(ctx context.Context, source string, rows []*models.RawReading) (*IngestResult, error) {
	start := time.Now()
	res := &IngestResult{EventIDs: make([]string, 0, len(rows))}
	batch := make([]*models.RawReading, 0, len(rows))

	for _, r := range rows {
		if reason := validateReading(r); reason != "" {
			res.Rejected++
			ingestmetrics.IngestRejected.WithLabelValues(reason).Inc()
			p.metrics.RecordError("pipeline_validate")
			continue
		}
		if !p.allow(r.SensorID) {
			// throttled; record and drop silently
			res.Throttled++
			ingestmetrics.IngestRejected.WithLabelValues("throttled").Inc()
			p.metrics.RecordError("pipeline_throttle")
			continue
		}
		if r.EventID == "" {
			r.EventID = uuid.NewString()
		}
		batch = append(batch, r)
		res.EventIDs = append(res.EventIDs, r.EventID)
	}
	if len(batch) == 0 {
		return res, nil
	}
	res.Accepted = len(batch)
	ingestmetrics.IngestAccepted.WithLabelValues(source).Add(float64(len(batch)))

	err := p.proc.ProcessBatch(ctx, batch)
	if err == nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
		return res, nil
	}

	p.metrics.RecordError("pipeline_process")
	if p.l != nil {
		p.l.Warn("ingest downstream failed, buffering",
			applogger.Int("rows", len(batch)),
			applogger.Error(err),
		)
	}
	for _, r := range batch {
		// buffer non-blocking
		select {
		case p.bufCh <- r:
			res.Buffered++
		default:
			res.Dropped++
		}
	}
	ingestmetrics.IngestQueueDepth.Set(float64(len(p.bufCh)))
	if res.Dropped > 0 {
		p.metrics.RecordError("pipeline_buffer_full")
		ingestmetrics.IngestRejected.WithLabelValues("buffer_full").Add(float64(res.Dropped))
		return res, fmt.Errorf("pipeline downstream: %w: %v", ErrBufferFull, err)
	}
	return res, nil
}

func (p *IngestPipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	backoff := 50 * time.Millisecond

	for {
		select {
		case <-p.stopCh:
			// Final attempt with a fresh context, the parent may be done already.
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.flush(fctx)
			cancel()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.flush(ctx) {
				backoff = 50 * time.Millisecond
				continue
			}
			// exponential backoff with cap
			if backoff < p.backoffMax {
				backoff *= 2
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.flush(fctx)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// flush drains up to batchSize buffered rows into one ProcessBatch. Failed
// rows are requeued if there is room. It reports false on failure.
func (p *IngestPipeline) flush(ctx context.Context) bool {
	batch := make([]*models.RawReading, 0, p.batchSize)
drain:
	for len(batch) < p.batchSize {
		select {
		case r := <-p.bufCh:
			batch = append(batch, r)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return true
	}

	start := time.Now()
	err := p.proc.ProcessBatch(ctx, batch)
	ingestmetrics.IngestFlushSeconds.Observe(time.Since(start).Seconds())
	if err == nil {
		ingestmetrics.IngestQueueDepth.Set(float64(len(p.bufCh)))
		if p.l != nil {
			p.l.Info("ingest buffer flushed", applogger.Int("rows", len(batch)), applogger.Int("remaining", len(p.bufCh)))
		}
		return true
	}

	p.metrics.RecordError("pipeline_flush")
	dropped := 0
	for _, r := range batch {
		// requeue if space; drop otherwise
		select {
		case p.bufCh <- r:
		default:
			dropped++
		}
	}
	ingestmetrics.IngestQueueDepth.Set(float64(len(p.bufCh)))
	if dropped > 0 {
		p.metrics.RecordError("pipeline_buffer_drop")
		ingestmetrics.IngestRejected.WithLabelValues("buffer_full").Add(float64(dropped))
	}
	if p.l != nil {
		p.l.Warn("ingest flush failed",
			applogger.Int("rows", len(batch)),
			applogger.Int("dropped", dropped),
			applogger.Error(err),
		)
	}
	return false
}

func (p *IngestPipeline) allow(sensorID int64) bool {
	if p.limiter == nil {
		return true
	}
	return p.limiter.Allow(strconv.FormatInt(sensorID, 10))
}

// validateReading returns the rejection reason, or "" for a valid reading.
func validateReading(r *models.RawReading) string {
	if r == nil {
		return "nil"
	}
	if r.SensorID < 0 {
		return "sensor_id"
	}
	if _, _, ok := util.ParseTimestamp(r.TsUTC, time.UTC); !ok {
		return "ts_utc"
	}
	for _, v := range []*float64{r.Celsius, r.AverageDB, r.MaxDB, r.Lat, r.Lon} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return "non_finite"
		}
	}
	return ""
}
