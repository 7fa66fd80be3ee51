// Package worker dispatches batch requests consumed from Kafka with bounded
// concurrency and reports each batch as a BatchEvent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ajayykmr/persona-dispatch/internal/batch"
	"github.com/ajayykmr/persona-dispatch/internal/dispatch"
	"github.com/ajayykmr/persona-dispatch/internal/metrics"
	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// SourceKafka tags events and metrics produced by the worker.
const SourceKafka = "kafka"

// Config contains the runtime settings of the engine.
type Config struct {
	MsgMaxBytes int
	Concurrency int
}

// Record is a Kafka message as seen by the engine, decoupled from the
// concrete consumer.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commitFn func(context.Context) error
}

// Dispatcher sends a normalized batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch models.Batch) ([]models.DispatchOutcome, error)
}

// EventPublisher reports finished batches.
type EventPublisher interface {
	PublishBatchEvent(ctx context.Context, event models.BatchEvent) error
}

// Committer acknowledges a processed record.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// CommitFunc adapts a function to Committer.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit calls f.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error { return f(ctx, record) }

// Dependencies collects the collaborators of the engine. Publisher may be
// nil. Committer is used for records without a bound commit function.
type Dependencies struct {
	Dispatcher Dispatcher
	Publisher  EventPublisher
	Committer  Committer
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Engine turns records into dispatches. Every record is committed once it has
// been handled, including ones that could not be dispatched: batches are
// never retried.
type Engine struct {
	cfg        Config
	dispatcher Dispatcher
	publisher  EventPublisher
	committer  Committer
	logger     zerolog.Logger
	sem        *semaphore.Weighted
	now        func() time.Time
}

// NewEngine validates the configuration and collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.Concurrency < 1 {
		return nil, errors.New("worker: concurrency must be >= 1")
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("worker: dispatcher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cfg:        cfg,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		committer:  deps.Committer,
		logger:     logger.With().Str("component", "worker_engine").Logger(),
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:        now,
	}, nil
}

// HandleRecord rejects oversized or invalid payloads synchronously and
// dispatches valid ones in the background once a concurrency slot is free.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		err := fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MsgMaxBytes)
		e.reject(ctx, record, string(record.Key), metrics.ResultInvalid, err)
		return
	}

	req, err := batch.Parse(record.Value)
	if err != nil {
		e.reject(ctx, record, string(record.Key), metrics.ResultInvalid, err)
		return
	}
	b := req.Batch()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.logger.Warn().
			Str("batch_id", b.ID).
			Err(err).
			Msg("concurrency slot not acquired; record left uncommitted")
		return
	}

	rec := record.Clone()
	go func() {
		defer e.sem.Release(1)
		e.process(ctx, rec, b)
	}()
}

// Wait blocks until every in-flight batch has finished.
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.sem.Acquire(ctx, int64(e.cfg.Concurrency)); err != nil {
		return err
	}
	e.sem.Release(int64(e.cfg.Concurrency))
	return nil
}

func (e *Engine) process(ctx context.Context, record *Record, b models.Batch) {
	if ctx.Err() != nil {
		e.logger.Warn().
			Str("batch_id", b.ID).
			Msg("context cancelled before dispatch; record left uncommitted")
		return
	}
	// A started batch runs to completion even if the consumer shuts down.
	ctx = context.WithoutCancel(ctx)

	outcomes, err := e.dispatcher.Dispatch(ctx, b)
	if err != nil {
		result := metrics.ResultFailed
		switch {
		case errors.Is(err, dispatch.ErrConfiguration):
			result = metrics.ResultMisconfigured
		case errors.Is(err, dispatch.ErrInvalidBatch):
			result = metrics.ResultInvalid
		}
		e.reject(ctx, record, b.ID, result, err)
		return
	}

	sent, failed := models.CountOutcomes(outcomes)
	metrics.IncBatch(SourceKafka, metrics.ResultCompleted)
	e.publish(ctx, models.BatchEvent{
		BatchID:   b.ID,
		Source:    SourceKafka,
		Status:    models.BatchEventCompleted,
		Results:   outcomes,
		Sent:      sent,
		Failed:    failed,
		Timestamp: e.now().UTC(),
	})
	e.commit(ctx, record)
}

func (e *Engine) reject(ctx context.Context, record *Record, batchID, result string, err error) {
	e.logger.Warn().
		Str("batch_id", batchID).
		Str("topic", record.Topic).
		Int64("offset", record.Offset).
		Err(err).
		Msg("batch not dispatched")

	metrics.IncBatch(SourceKafka, result)
	e.publish(ctx, models.BatchEvent{
		BatchID:   batchID,
		Source:    SourceKafka,
		Status:    models.BatchEventFailed,
		Error:     err.Error(),
		Timestamp: e.now().UTC(),
	})
	e.commit(ctx, record)
}

func (e *Engine) publish(ctx context.Context, event models.BatchEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishBatchEvent(ctx, event); err != nil {
		e.logger.Error().
			Str("batch_id", event.BatchID).
			Str("status", event.Status).
			Err(err).
			Msg("failed to publish batch event")
	}
}

func (e *Engine) commit(ctx context.Context, record *Record) {
	var err error
	switch {
	case record.commitFn != nil:
		err = record.commitFn(ctx)
	case e.committer != nil:
		err = e.committer.Commit(ctx, record)
	default:
		return
	}
	if err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("failed to commit record offset")
	}
}

// Clone returns a deep copy of the record for use by another goroutine.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Key = cloneBytes(r.Key)
	clone.Value = cloneBytes(r.Value)
	clone.Headers = cloneHeaders(r.Headers)
	return &clone
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
