package dispatch

import (
	"errors"

	"github.com/ajayykmr/persona-dispatch/internal/config"
)

var (
	// ErrInvalidBatch is returned when a batch fails the structural checks
	// repeated here for callers that bypass request validation.
	ErrInvalidBatch = errors.New("dispatch: invalid batch")
	// ErrConfiguration marks a missing provider or sender. No recipient is
	// contacted when it is returned.
	ErrConfiguration = errors.New("dispatch: configuration error")
)

// ConfigurationError reports why the dispatcher cannot send. Its message is
// the operator-facing text of the underlying cause.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return config.ErrMissingTwilio.Error()
	}
	if errors.Is(e.Err, config.ErrMissingTwilio) {
		return config.ErrMissingTwilio.Error()
	}
	return e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
