// Package publisher writes batch events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// ErrProducerNotInitialised is returned when publishing through a nil publisher.
var ErrProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required here.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// BatchEventPublisher emits one event per finished batch, keyed by batch id so
// every event of a batch lands on the same partition.
type BatchEventPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewBatchEventPublisher returns nil when prod is nil; callers treat a nil
// publisher as "events disabled".
func NewBatchEventPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *BatchEventPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &BatchEventPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishBatchEvent writes the event synchronously.
func (p *BatchEventPublisher) PublishBatchEvent(_ context.Context, event models.BatchEvent) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal batch event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"event-status": []byte(event.Status),
	}
	if err := p.producer.PublishSync(p.topic, []byte(event.BatchID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish batch event: %w", err)
	}

	p.logger.Debug().
		Str("batch_id", event.BatchID).
		Str("status", event.Status).
		Str("topic", p.topic).
		Msg("batch event published")
	return nil
}
