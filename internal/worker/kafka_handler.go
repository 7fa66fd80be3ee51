package worker

import (
	"context"

	"github.com/ajayykmr/persona-dispatch/internal/kafka/consumer"
)

// RecordCommitter is the commit side of the Kafka consumer.
type RecordCommitter interface {
	Commit(ctx context.Context, record *consumer.Record) error
}

// KafkaHandler returns a consumer.Handler that feeds records to the engine.
// Each record carries its own commit so the engine can acknowledge it after
// the batch settles, independent of delivery order.
func KafkaHandler(engine *Engine, cons RecordCommitter) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}
		engine.HandleRecord(ctx, fromConsumer(rec, cons))
		return nil
	}
}

func fromConsumer(rec *consumer.Record, cons RecordCommitter) *Record {
	out := &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
	}
	if cons != nil {
		out.commitFn = func(ctx context.Context) error {
			return cons.Commit(ctx, rec)
		}
	}
	return out
}
