package repository

import (
	"context"

	"SwingPull/internal/domain/models"
	domrepo "SwingPull/internal/domain/repository"
	pkgkafka "SwingPull/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates a Kafka funnel-event publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) domrepo.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishEvents(ctx context.Context, events []models.FunnelEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(ev.Ticker),
			Value: ev,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher discards events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishEvents(ctx context.Context, events []models.FunnelEvent) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

// MultiPublisher fans events out to several sinks. A failing sink does not
// stop the others; the first error is returned.
type MultiPublisher struct {
	sinks []domrepo.Publisher
}

// NewMultiPublisher combines publishers into one.
func NewMultiPublisher(sinks ...domrepo.Publisher) domrepo.Publisher {
	return &MultiPublisher{sinks: sinks}
}

func (m *MultiPublisher) PublishEvents(ctx context.Context, events []models.FunnelEvent) error {
	var first error
	for _, sink := range m.sinks {
		if err := sink.PublishEvents(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiPublisher) Close() error {
	var first error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
