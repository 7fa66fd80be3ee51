package factory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/persona-dispatch/internal/config"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

// Backend names accepted by SMS.
const (
	BackendTwilio = "twilio"
	BackendMock   = "mock"
)

// SMS constructs the configured SMS provider. Supports Twilio and mock
// backends. Incomplete Twilio credentials yield an error wrapping
// config.ErrMissingTwilio so callers can keep serving and report it per batch.
func SMS(cfg config.ProviderConfig, logger zerolog.Logger) (smsprovider.Provider, error) {
	backend := normalize(cfg.SMSProvider, BackendTwilio)
	switch backend {
	case BackendTwilio:
		provider, err := smsprovider.NewTwilioProvider(cfg.Twilio, logger)
		if err != nil {
			return nil, fmt.Errorf("factory: twilio sms provider init: %w", err)
		}
		logger.Info().
			Str("backend", BackendTwilio).
			Bool("messaging_service", strings.TrimSpace(cfg.Twilio.MessagingServiceSID) != "").
			Msg("sms provider initialised")
		return provider, nil
	case BackendMock:
		provider := smsprovider.NewMockProvider(logger)
		logger.Info().
			Str("backend", BackendMock).
			Msg("sms provider initialised")
		return provider, nil
	default:
		return nil, fmt.Errorf("factory: unsupported sms provider backend %q", cfg.SMSProvider)
	}
}

// Sender derives the sender selector from configuration. The mock backend
// falls back to a placeholder number so local runs need no Twilio settings.
func Sender(cfg config.ProviderConfig) smsprovider.Sender {
	sender := smsprovider.Sender{
		ServiceID:  strings.TrimSpace(cfg.Twilio.MessagingServiceSID),
		FromNumber: strings.TrimSpace(cfg.Twilio.PhoneNumber),
	}
	if normalize(cfg.SMSProvider, BackendTwilio) == BackendMock && sender.Validate() != nil {
		sender.FromNumber = "+15005550006"
	}
	return sender
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
