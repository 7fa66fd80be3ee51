// Package bootstrap assembles the runtime graph shared by the binaries.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	smsadapter "github.com/ajayykmr/persona-dispatch/internal/adapters/sms"
	"github.com/ajayykmr/persona-dispatch/internal/config"
	"github.com/ajayykmr/persona-dispatch/internal/dispatch"
	"github.com/ajayykmr/persona-dispatch/internal/kafka/producer"
	kafkapublisher "github.com/ajayykmr/persona-dispatch/internal/kafka/publisher"
	"github.com/ajayykmr/persona-dispatch/internal/message"
	"github.com/ajayykmr/persona-dispatch/internal/providers/factory"
)

// Backend returns the normalized provider backend name.
func Backend(cfg *config.Config) string {
	backend := strings.ToLower(strings.TrimSpace(cfg.Providers.SMSProvider))
	if backend == "" {
		return factory.BackendTwilio
	}
	return backend
}

// Format returns the message composition policy from configuration.
func Format(cfg *config.Config) message.Format {
	return message.Format{Separator: cfg.Message.Separator}
}

// Dispatcher builds the provider, adapter and dispatcher. Missing Twilio
// settings do not fail startup: the dispatcher is returned in an unavailable
// state and reports the configuration error for every batch. Other provider
// errors are returned.
func Dispatcher(cfg *config.Config, logger zerolog.Logger) (*dispatch.Dispatcher, error) {
	opts := []dispatch.Option{
		dispatch.WithFormat(Format(cfg)),
		dispatch.WithSendTimeout(time.Duration(cfg.Timeouts.ProviderTimeoutSeconds) * time.Second),
	}
	sender := factory.Sender(cfg.Providers)

	providerLogger := logger.With().
		Str("component", "sms-provider").
		Str("backend", Backend(cfg)).
		Logger()
	provider, err := factory.SMS(cfg.Providers, providerLogger)
	if err != nil {
		if !errors.Is(err, config.ErrMissingTwilio) {
			return nil, err
		}
		logger.Warn().Err(err).Msg("sms provider unavailable; batches will be rejected")
		opts = append(opts, dispatch.WithUnavailable(err))
		return dispatch.New(nil, sender, logger, opts...), nil
	}

	adapter, err := smsadapter.NewAdapter(provider, logger.With().Str("component", "sms-adapter").Logger())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: sms adapter: %w", err)
	}

	d := dispatch.New(adapter, sender, logger, opts...)
	if err := d.Ready(); err != nil {
		logger.Warn().Err(err).Msg("sms sender not configured; batches will be rejected")
	}
	return d, nil
}

// Events connects the batch event publisher when Kafka is configured. It
// returns a nil publisher and a no-op close function otherwise.
func Events(cfg *config.Config, logger zerolog.Logger) (*kafkapublisher.BatchEventPublisher, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Kafka.Enabled() {
		logger.Info().Msg("kafka brokers not configured; batch events disabled")
		return nil, noop, nil
	}

	prod, err := producer.New(cfg.Kafka.Brokers, logger.With().Str("component", "kafka").Logger())
	if err != nil {
		return nil, noop, fmt.Errorf("bootstrap: kafka producer: %w", err)
	}
	pub := kafkapublisher.NewBatchEventPublisher(prod, cfg.Kafka.EventTopic, logger.With().Str("component", "event-publisher").Logger())
	return pub, prod.Close, nil
}
