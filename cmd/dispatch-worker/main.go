package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajayykmr/persona-dispatch/internal/bootstrap"
	"github.com/ajayykmr/persona-dispatch/internal/config"
	"github.com/ajayykmr/persona-dispatch/internal/kafka/consumer"
	"github.com/ajayykmr/persona-dispatch/internal/logger"
	"github.com/ajayykmr/persona-dispatch/internal/worker"
)

const serviceName = "dispatch-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}
	if !cfg.Kafka.Enabled() {
		fail("config load", errors.New("KAFKA_BROKERS is required for the worker"))
	}

	baseLogger, err := logger.New(logger.Options{Service: serviceName, Env: cfg.App.Env, Level: cfg.App.LogLevel})
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	dispatcher, err := bootstrap.Dispatcher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	events, closeEvents, err := bootstrap.Events(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise batch events")
	}
	defer func() {
		if err := closeEvents(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log.With().Str("component", "consumer").Logger(), cfg.Worker.CommitOnAck)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	deps := worker.Dependencies{
		Dispatcher: dispatcher,
		Logger:     log,
		Now:        time.Now,
	}
	if events != nil {
		deps.Publisher = events
	}
	engine, err := worker.NewEngine(worker.Config{
		MsgMaxBytes: cfg.Worker.MsgMaxBytes,
		Concurrency: cfg.Worker.Concurrency,
	}, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	topics := []string{cfg.Kafka.RequestTopic}
	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, topics, worker.KafkaHandler(engine, cons)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("request_topic", cfg.Kafka.RequestTopic).
		Str("event_topic", cfg.Kafka.EventTopic).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("dispatch worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight batches did not finish before shutdown")
	}
}

func fail(stage string, err error) {
	l := logger.Fallback(serviceName)
	l.Fatal().Err(err).Str("stage", stage).Msg("dispatch worker init failed")
}
