package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	pkgkafka "EnviroPulse/pkg/kafka"
	"EnviroPulse/pkg/util"
)

// KafkaReadingsHandler consumes the readings topic, stores each reading and
// pushes it to the live feed.
type KafkaReadingsHandler struct {
	topic   string
	storage domrepo.ReadingStore
	feed    domrepo.LiveFeed
	metrics domrepo.Metrics
}

func NewKafkaReadingsHandler(topic string, storage domrepo.ReadingStore, feed domrepo.LiveFeed, metrics domrepo.Metrics) *KafkaReadingsHandler {
	return &KafkaReadingsHandler{topic: topic, storage: storage, feed: feed, metrics: metrics}
}

func (h *KafkaReadingsHandler) Topic() string { return h.topic }

// Handle expects a JSON encoded models.RawReading. Undecodable payloads and
// readings without a parseable ts_utc are rejected with a HookError so the
// consumer dead-letters them.
func (h *KafkaReadingsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.RawReading
	if err := json.Unmarshal(b, &r); err != nil {
		h.recordError("consumer_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	if r.TsUTC == "" {
		h.recordError("consumer_validate")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: fmt.Errorf("sensor %d: ts_utc is empty", r.SensorID)}
	}
	ts, _, ok := util.ParseTimestamp(r.TsUTC, time.UTC)
	if !ok {
		h.recordError("consumer_validate")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: fmt.Errorf("sensor %d: ts_utc %q is not a timestamp", r.SensorID, r.TsUTC)}
	}

	// E2E latency from event time to now (approx)
	if h.metrics != nil {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, &r)
	if h.metrics != nil {
		h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("consumer_store")
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordIngested(BackendClickHouse, r.SensorID)
		recordLastValues(h.metrics, &r)
	}

	if h.feed != nil {
		h.feed.PublishReading(&r)
	}
	return nil
}

func (h *KafkaReadingsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaReadingsHandler)(nil)
