package sms

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/persona-dispatch/internal/adapters/common"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

// Option modifies adapter behaviour.
type Option func(*Adapter)

// WithRawBodyLimit overrides how much of the provider body to keep in responses.
func WithRawBodyLimit(limit int) Option {
	return func(a *Adapter) {
		if limit > 0 {
			a.maxRawChars = limit
		}
	}
}

// Adapter implements common.Adapter on top of an SMS provider.
type Adapter struct {
	logger      zerolog.Logger
	provider    smsprovider.Provider
	maxRawChars int
}

// NewAdapter constructs an SMS adapter using the supplied provider.
func NewAdapter(provider smsprovider.Provider, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("sms adapter: provider dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:      logger,
		provider:    provider,
		maxRawChars: common.DefaultRawBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Send converts the outbound message into a provider payload and delegates to
// the provider. Failures come back classified as transient or permanent.
func (a *Adapter) Send(ctx context.Context, msg *common.OutboundMessage) (*common.ProviderResponse, error) {
	if msg == nil {
		return nil, common.WrapPermanent(errors.New("sms adapter: message is nil"))
	}

	rawResp, err := a.provider.Send(ctx, buildPayload(msg))
	if err != nil {
		status := classify(rawResp, err)
		resp := a.buildResponse(rawResp, status, err.Error())
		a.logger.Debug().
			Str("batch_id", msg.BatchID).
			Str("contact_id", msg.RecipientID).
			Str("provider_status", status).
			Err(err).
			Msg("sms adapter send failed")
		if status == common.StatusRejected {
			return resp, common.WrapPermanent(err)
		}
		return resp, common.WrapTransient(err)
	}

	resp := a.buildResponse(rawResp, common.StatusOK, "sent")
	a.logger.Debug().
		Str("batch_id", msg.BatchID).
		Str("contact_id", msg.RecipientID).
		Str("provider_id", resp.ProviderID).
		Msg("sms adapter send succeeded")
	return resp, nil
}

func buildPayload(msg *common.OutboundMessage) *smsprovider.Payload {
	meta := map[string]string{}
	if strings.TrimSpace(msg.BatchID) != "" {
		meta["batch_id"] = msg.BatchID
	}
	if strings.TrimSpace(msg.RecipientID) != "" {
		meta["contact_id"] = msg.RecipientID
	}
	for key, value := range msg.Meta {
		if strings.TrimSpace(value) != "" {
			meta[key] = value
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	return &smsprovider.Payload{
		To:     msg.To,
		Body:   msg.Body,
		Sender: msg.Sender,
		Meta:   meta,
	}
}

func (a *Adapter) buildResponse(raw *smsprovider.RawResponse, status, message string) *common.ProviderResponse {
	resp := &common.ProviderResponse{Status: status, Message: message}
	if raw == nil {
		return resp
	}

	resp.ProviderID = raw.ID
	if raw.Code != 0 {
		code := raw.Code
		resp.Code = &code
	}
	if raw.Body != "" {
		resp.Raw = common.TruncateRaw(raw.Body, a.maxRawChars)
	}

	meta := make(map[string]string)
	if raw.Status != "" {
		meta["provider_status"] = raw.Status
	}
	if !raw.Timestamp.IsZero() {
		meta["provider_timestamp"] = raw.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if len(meta) > 0 {
		resp.Meta = meta
	}
	return resp
}

// classify maps a provider failure onto a normalized status. Twilio error
// codes win over HTTP statuses.
func classify(raw *smsprovider.RawResponse, err error) string {
	var perr *smsprovider.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case 21211, 21408, 21604, 21610, 21612, 21614:
			return common.StatusRejected
		case 20429, 30001, 30002, 30003, 30005:
			return common.StatusRateLimited
		}
		if status := classifyHTTP(perr.HTTPStatus); status != "" {
			return status
		}
	}
	if raw != nil {
		if status := classifyHTTP(raw.Code); status != "" {
			return status
		}
	}
	if errors.Is(err, smsprovider.ErrSenderMissing) {
		return common.StatusRejected
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return common.StatusRateLimited
	}
	return common.StatusUnknown
}

func classifyHTTP(code int) string {
	switch {
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return common.StatusRateLimited
	case code >= http.StatusBadRequest:
		return common.StatusRejected
	}
	return ""
}
