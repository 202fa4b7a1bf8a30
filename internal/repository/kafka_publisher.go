package repository

import (
	"context"
	"strconv"

	"EnviroPulse/internal/domain/models"
	domrepo "EnviroPulse/internal/domain/repository"
	pkgkafka "EnviroPulse/pkg/kafka"
)

// topicPublisher is the part of pkgkafka.Producer the publishers use.
type topicPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaPublisher sends readings to the ingest topic keyed by sensor id, so
// one sensor's readings stay ordered within a partition.
type KafkaPublisher struct {
	producer topicPublisher
	topic    string
}

var _ domrepo.ReadingPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r *models.RawReading) error {
	return p.producer.Publish(ctx, p.topic, sensorKey(r.SensorID), r)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, rows []*models.RawReading) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: sensorKey(r.SensorID), Value: r})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	return nil // Producer lifecycle is managed by the app
}

// KafkaForecastPublisher emits forecast events.
type KafkaForecastPublisher struct {
	producer topicPublisher
	topic    string
}

var _ domrepo.ForecastPublisher = (*KafkaForecastPublisher)(nil)

func NewKafkaForecastPublisher(producer *pkgkafka.Producer, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, topic: topic}
}

func (p *KafkaForecastPublisher) PublishForecast(ctx context.Context, ev *models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.topic, sensorKey(ev.Result.SensorID), ev)
}

func sensorKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}
