package sms

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates the mock behaviours supported by the SMS provider.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"
	// ScenarioPanic makes Send panic with a plain string, the way a broken
	// client library might.
	ScenarioPanic Scenario = "panic"
)

// Option customises the mock provider.
type Option func(*MockProvider)

// WithScenario sets the default scenario used when a payload does not specify one.
func WithScenario(s Scenario) Option {
	return func(p *MockProvider) {
		p.defaultScenario = s
	}
}

// WithRecipientScenario pins the scenario for one destination number.
func WithRecipientScenario(to string, s Scenario) Option {
	return func(p *MockProvider) {
		p.byRecipient[strings.TrimSpace(to)] = s
	}
}

// WithLatency configures the artificial latency injected before sending.
func WithLatency(d time.Duration) Option {
	return func(p *MockProvider) {
		if d < 0 {
			d = 0
		}
		p.latency = d
	}
}

// WithClock overrides the clock used to timestamp responses (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(p *MockProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// MockProvider is a deterministic SMS provider used for local runs and tests.
type MockProvider struct {
	logger          zerolog.Logger
	defaultScenario Scenario
	byRecipient     map[string]Scenario
	latency         time.Duration
	now             func() time.Time

	mu   sync.Mutex
	rnd  *rand.Rand
	sent int
}

// NewMockProvider constructs a mock SMS provider.
func NewMockProvider(logger zerolog.Logger, opts ...Option) *MockProvider {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	p := &MockProvider{
		logger:          logger,
		defaultScenario: ScenarioSuccess,
		byRecipient:     map[string]Scenario{},
		latency:         25 * time.Millisecond,
		now:             time.Now,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- predictable in tests.
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Sent returns how many payloads reached the scenario stage.
func (p *MockProvider) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Send simulates sending an SMS payload according to the configured scenario.
func (p *MockProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("sms mock: payload is required")
	}
	if strings.TrimSpace(payload.To) == "" {
		return nil, &ProviderError{Provider: "mock", Code: 21604, HTTPStatus: 400, Message: "A 'To' phone number is required."}
	}
	if err := payload.Sender.Validate(); err != nil {
		return nil, err
	}

	// honour context cancellation before work begins
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	scenario := p.scenarioFor(payload)

	p.mu.Lock()
	p.sent++
	p.mu.Unlock()

	response := &RawResponse{
		ID:        p.generateID(),
		Code:      201,
		Status:    "queued",
		Body:      "mock: message accepted",
		Timestamp: p.now(),
	}

	p.logger.Debug().
		Str("to", payload.To).
		Str("scenario", string(scenario)).
		Msg("sms mock: handling payload")

	switch scenario {
	case ScenarioSuccess:
		return response, nil
	case ScenarioTransient:
		response.Code = 429
		response.Status = "transient_failure"
		response.Body = `{"code":20429,"message":"Too Many Requests"}`
		return response, &ProviderError{Provider: "mock", Code: 20429, HTTPStatus: 429, Message: "Too Many Requests"}
	case ScenarioPermanent:
		response.Code = 400
		response.Status = "permanent_failure"
		response.Body = `{"code":21211,"message":"The 'To' number is not a valid phone number."}`
		return response, &ProviderError{Provider: "mock", Code: 21211, HTTPStatus: 400, Message: fmt.Sprintf("The 'To' number %s is not a valid phone number.", payload.To)}
	case ScenarioTimeout:
		// Simulate a timeout by waiting until the context expires.
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, errors.New("sms mock: provider timeout")
		}
	case ScenarioPanic:
		panic("sms mock: simulated provider crash")
	default:
		response.Status = "unknown"
		response.Body = "mock: unknown scenario"
		return response, fmt.Errorf("sms mock unknown scenario: %s", scenario)
	}
}

func (p *MockProvider) scenarioFor(payload *Payload) Scenario {
	if val, ok := payload.Meta["scenario"]; ok && strings.TrimSpace(val) != "" {
		return Scenario(strings.ToLower(strings.TrimSpace(val)))
	}
	if s, ok := p.byRecipient[strings.TrimSpace(payload.To)]; ok {
		return s
	}
	return p.defaultScenario
}

func (p *MockProvider) generateID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("SMmock%016x", p.rnd.Uint64())
}
