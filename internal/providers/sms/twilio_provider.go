package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/persona-dispatch/internal/config"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"
	defaultBodyLimit     = 16 * 1024
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TwilioOption customises the behaviour of the Twilio SMS provider.
type TwilioOption func(*TwilioProvider)

// WithTwilioHTTPClient overrides the HTTP client used to talk to Twilio.
func WithTwilioHTTPClient(client HTTPClient) TwilioOption {
	return func(p *TwilioProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTwilioBaseURL sets the base Twilio API URL. Useful for tests.
func WithTwilioBaseURL(baseURL string) TwilioOption {
	return func(p *TwilioProvider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTwilioClock overrides the clock used for timestamps.
func WithTwilioClock(now func() time.Time) TwilioOption {
	return func(p *TwilioProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTwilioBodyLimit adjusts how many bytes are retained from the HTTP response body.
func WithTwilioBodyLimit(limit int64) TwilioOption {
	return func(p *TwilioProvider) {
		if limit > 0 {
			p.maxBodyBytes = limit
		}
	}
}

// TwilioProvider sends SMS through Twilio's Messages resource.
type TwilioProvider struct {
	logger        zerolog.Logger
	accountSID    string
	authToken     string
	defaultSender Sender
	httpClient    HTTPClient
	baseURL       string
	now           func() time.Time
	maxBodyBytes  int64
}

// NewTwilioProvider constructs a Twilio-backed SMS provider. Missing
// credentials yield an error wrapping config.ErrMissingTwilio.
func NewTwilioProvider(cfg config.TwilioConfig, logger zerolog.Logger, opts ...TwilioOption) (*TwilioProvider, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("twilio sms provider: account SID is required: %w", config.ErrMissingTwilio)
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio sms provider: auth token is required: %w", config.ErrMissingTwilio)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	provider := &TwilioProvider{
		logger:     logger,
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		defaultSender: Sender{
			ServiceID:  strings.TrimSpace(cfg.MessagingServiceSID),
			FromNumber: strings.TrimSpace(cfg.PhoneNumber),
		},
		baseURL:      defaultTwilioBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		maxBodyBytes: defaultBodyLimit,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}

	if provider.httpClient == nil {
		provider.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if provider.baseURL == "" {
		provider.baseURL = defaultTwilioBaseURL
	}

	return provider, nil
}

// Send delivers the SMS payload via Twilio. The payload sender wins over the
// configured default; within a sender the messaging service wins over the
// from number.
func (p *TwilioProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("twilio sms provider: payload is required")
	}
	to := strings.TrimSpace(payload.To)
	if to == "" {
		return nil, errors.New("twilio sms provider: recipient is required")
	}

	sender := payload.Sender
	if sender.Validate() != nil {
		sender = p.defaultSender
	}
	if err := sender.Validate(); err != nil {
		return nil, fmt.Errorf("twilio sms provider: %w", err)
	}

	params := url.Values{}
	params.Set("To", to)
	params.Set("Body", payload.Body)
	if sender.UsesService() {
		params.Set("MessagingServiceSid", strings.TrimSpace(sender.ServiceID))
	} else {
		params.Set("From", strings.TrimSpace(sender.FromNumber))
	}
	for key, value := range payload.Meta {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" || isReservedParam(key) {
			continue
		}
		params.Set(normalizeTwilioParam(key), value)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("twilio sms provider: new request: %w", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio sms provider: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := p.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	parsed := parseTwilioBody(body)
	raw := &RawResponse{
		ID:        parsed.SID,
		Code:      resp.StatusCode,
		Status:    parsed.Status,
		Body:      body,
		Timestamp: p.now(),
	}
	if raw.Status == "" {
		raw.Status = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(body)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	p.logger.Debug().
		Int("http_status", resp.StatusCode).
		Int("twilio_code", parsed.ErrorCode).
		Msg("twilio sms provider: request rejected")

	return raw, &ProviderError{
		Provider:   "twilio",
		Code:       parsed.ErrorCode,
		HTTPStatus: resp.StatusCode,
		Message:    message,
	}
}

func (p *TwilioProvider) readBody(rc io.ReadCloser) (string, error) {
	if rc == nil {
		return "", nil
	}

	limit := p.maxBodyBytes
	if limit <= 0 {
		limit = defaultBodyLimit
	}

	data, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return "", fmt.Errorf("twilio sms provider: read body: %w", err)
	}
	return string(data), nil
}

type twilioBody struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode int    `json:"code"`
	Message   string `json:"message"`
}

// parseTwilioBody tolerates error codes encoded as strings, which the strict
// decode rejects.
func parseTwilioBody(body string) twilioBody {
	if strings.TrimSpace(body) == "" {
		return twilioBody{}
	}

	var parsed twilioBody
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		return parsed
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return twilioBody{}
	}

	result := twilioBody{}
	if v, ok := generic["sid"].(string); ok {
		result.SID = v
	}
	if v, ok := generic["status"].(string); ok {
		result.Status = v
	}
	if v, ok := generic["code"]; ok {
		switch value := v.(type) {
		case float64:
			result.ErrorCode = int(value)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				result.ErrorCode = n
			}
		}
	}
	if v, ok := generic["message"].(string); ok {
		result.Message = v
	}
	return result
}

func isReservedParam(key string) bool {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key)) {
	case "scenario", "to", "from", "body", "messagingservicesid", "batchid", "contactid":
		return true
	}
	return false
}

func normalizeTwilioParam(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return key
	}
	if unicode.IsUpper([]rune(key)[0]) {
		return key
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, "")
}
