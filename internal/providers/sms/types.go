package sms

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrSenderMissing is returned when neither a messaging service nor a from
// number has been configured.
var ErrSenderMissing = errors.New("sms: sender requires a messaging service id or a from number")

// Sender selects the identity messages are sent from. When both values are
// present ServiceID takes precedence.
type Sender struct {
	ServiceID  string
	FromNumber string
}

// Validate reports ErrSenderMissing when no selector is set.
func (s Sender) Validate() error {
	if strings.TrimSpace(s.ServiceID) == "" && strings.TrimSpace(s.FromNumber) == "" {
		return ErrSenderMissing
	}
	return nil
}

// UsesService reports whether the messaging service selector applies.
func (s Sender) UsesService() bool {
	return strings.TrimSpace(s.ServiceID) != ""
}

// Payload encapsulates the data required to send one SMS via a provider.
type Payload struct {
	To     string
	Body   string
	Sender Sender
	Meta   map[string]string
}

// RawResponse describes the low-level provider response returned after an SMS
// has been processed.
type RawResponse struct {
	ID        string
	Code      int
	Status    string
	Body      string
	Timestamp time.Time
}

// Provider represents an outbound SMS provider (e.g. Twilio).
type Provider interface {
	Send(ctx context.Context, payload *Payload) (*RawResponse, error)
}

// ProviderError is the failure shape returned by providers. Message is the
// human readable text reported back to the operator.
type ProviderError struct {
	Provider   string
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "sms provider error"
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusCode exposes the HTTP status returned by the provider, if any.
func (e *ProviderError) StatusCode() int { return e.HTTPStatus }
