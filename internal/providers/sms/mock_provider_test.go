package sms_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

func newPayload(to string) *smsprovider.Payload {
	return &smsprovider.Payload{
		To:     to,
		Body:   "hello",
		Sender: smsprovider.Sender{FromNumber: "+10000000000"},
	}
}

func TestMockProviderSuccess(t *testing.T) {
	fixed := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithClock(func() time.Time { return fixed }), smsprovider.WithLatency(0))

	resp, err := provider.Send(context.Background(), newPayload("+10000000001"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.Code != 201 || resp.Status != "queued" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.ID, "SMmock") {
		t.Fatalf("expected generated SID, got %q", resp.ID)
	}
	if resp.Timestamp != fixed {
		t.Fatalf("expected fixed timestamp, got %v", resp.Timestamp)
	}
	if provider.Sent() != 1 {
		t.Fatalf("expected one send, got %d", provider.Sent())
	}
}

func TestMockProviderTransientFailure(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0))

	payload := newPayload("+10000000001")
	payload.Meta = map[string]string{"scenario": string(smsprovider.ScenarioTransient)}

	resp, err := provider.Send(context.Background(), payload)
	if err == nil {
		t.Fatalf("expected error for transient scenario")
	}
	if resp.Code != 429 || resp.Status != "transient_failure" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	var perr *smsprovider.ProviderError
	if !errors.As(err, &perr) || perr.HTTPStatus != 429 {
		t.Fatalf("expected provider error with 429, got %v", err)
	}
}

func TestMockProviderRecipientScenario(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(),
		smsprovider.WithLatency(0),
		smsprovider.WithRecipientScenario("+10000000002", smsprovider.ScenarioPermanent),
	)

	if _, err := provider.Send(context.Background(), newPayload("+10000000001")); err != nil {
		t.Fatalf("expected default scenario to succeed, got %v", err)
	}

	resp, err := provider.Send(context.Background(), newPayload("+10000000002"))
	if err == nil {
		t.Fatalf("expected error for permanent scenario")
	}
	if resp.Code != 400 || resp.Status != "permanent_failure" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(err.Error(), "not a valid phone number") {
		t.Fatalf("expected invalid number message, got %v", err)
	}
}

func TestMockProviderRequiresSender(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0))

	payload := newPayload("+10000000001")
	payload.Sender = smsprovider.Sender{}

	if _, err := provider.Send(context.Background(), payload); !errors.Is(err, smsprovider.ErrSenderMissing) {
		t.Fatalf("expected ErrSenderMissing, got %v", err)
	}
}

func TestMockProviderPanicScenario(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0), smsprovider.WithScenario(smsprovider.ScenarioPanic))

	defer func() {
		r := recover()
		if _, ok := r.(string); !ok {
			t.Fatalf("expected string panic value, got %#v", r)
		}
	}()
	_, _ = provider.Send(context.Background(), newPayload("+10000000001"))
	t.Fatalf("expected panic")
}

func TestMockProviderTimeoutScenario(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(25*time.Millisecond))

	payload := newPayload("+10000000001")
	payload.Meta = map[string]string{"scenario": string(smsprovider.ScenarioTimeout)}

	start := time.Now()
	_, err := provider.Send(context.Background(), payload)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected delay for timeout scenario")
	}
}

func TestMockProviderRespectsContextCancellation(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := provider.Send(ctx, newPayload("+10000000001")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation error, got %v", err)
	}
}
