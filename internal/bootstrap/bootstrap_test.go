package bootstrap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/persona-dispatch/internal/bootstrap"
	"github.com/ajayykmr/persona-dispatch/internal/config"
	"github.com/ajayykmr/persona-dispatch/internal/dispatch"
	"github.com/ajayykmr/persona-dispatch/internal/models"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Message.Separator = " | "
	cfg.Providers.SMSProvider = "twilio"
	return cfg
}

func TestDispatcherWithoutTwilioIsUnavailable(t *testing.T) {
	d, err := bootstrap.Dispatcher(baseConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("missing twilio settings must not fail startup: %v", err)
	}

	_, err = d.Dispatch(context.Background(), models.Batch{
		ID:         "b",
		Persona:    models.Persona{Name: "J"},
		Template:   "hi",
		Recipients: []models.Recipient{{ID: "1", Name: "A", Phone: "+1"}},
	})
	if !errors.Is(err, dispatch.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err.Error() != config.ErrMissingTwilio.Error() {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDispatcherWithMockBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.SMSProvider = "mock"

	d, err := bootstrap.Dispatcher(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Ready(); err != nil {
		t.Fatalf("mock backend should be ready: %v", err)
	}
}

func TestDispatcherRejectsUnknownBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.SMSProvider = "carrier-pigeon"

	if _, err := bootstrap.Dispatcher(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestEventsDisabledWithoutBrokers(t *testing.T) {
	pub, closeFn, err := bootstrap.Events(baseConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub != nil {
		t.Fatalf("expected nil publisher without brokers")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("noop close returned %v", err)
	}
}

func TestBackendAndFormat(t *testing.T) {
	cfg := baseConfig()
	cfg.Providers.SMSProvider = " Mock "
	if got := bootstrap.Backend(cfg); got != "mock" {
		t.Fatalf("unexpected backend %q", got)
	}
	cfg.Providers.SMSProvider = ""
	if got := bootstrap.Backend(cfg); got != "twilio" {
		t.Fatalf("unexpected default backend %q", got)
	}
	if got := bootstrap.Format(cfg).Separator; got != " | " {
		t.Fatalf("unexpected separator %q", got)
	}
}
