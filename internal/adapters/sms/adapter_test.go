package sms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	common "github.com/ajayykmr/persona-dispatch/internal/adapters/common"
	smsadapter "github.com/ajayykmr/persona-dispatch/internal/adapters/sms"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

type recordingProvider struct {
	payload *smsprovider.Payload
	resp    *smsprovider.RawResponse
	err     error
}

func (r *recordingProvider) Send(_ context.Context, payload *smsprovider.Payload) (*smsprovider.RawResponse, error) {
	r.payload = payload
	return r.resp, r.err
}

func TestAdapterSendSuccess(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0))
	adapter, err := smsadapter.NewAdapter(provider, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := adapter.Send(context.Background(), buildMessage())
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if resp.Status != common.StatusOK {
		t.Fatalf("expected status ok, got %s", resp.Status)
	}
	if resp.Code == nil || *resp.Code != 201 {
		t.Fatalf("expected provider code 201, got %+v", resp.Code)
	}
	if resp.ProviderID == "" {
		t.Fatalf("expected provider id, got %+v", resp)
	}
}

func TestAdapterSendPermanentFailure(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0), smsprovider.WithScenario(smsprovider.ScenarioPermanent))
	adapter, err := smsadapter.NewAdapter(provider, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := adapter.Send(context.Background(), buildMessage())
	if err == nil {
		t.Fatalf("expected error for permanent failure")
	}
	if !errors.Is(err, common.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var perr *smsprovider.ProviderError
	if !errors.As(err, &perr) || perr.Code != 21211 {
		t.Fatalf("expected provider error in chain, got %v", err)
	}
	if err.Error() != "The 'To' number +15550000001 is not a valid phone number." {
		t.Fatalf("expected provider message to survive wrapping, got %q", err.Error())
	}
	if resp.Status != common.StatusRejected {
		t.Fatalf("expected rejected status, got %s", resp.Status)
	}
}

func TestAdapterSendTransientFailure(t *testing.T) {
	provider := smsprovider.NewMockProvider(zerolog.Nop(), smsprovider.WithLatency(0), smsprovider.WithScenario(smsprovider.ScenarioTransient))
	adapter, err := smsadapter.NewAdapter(provider, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := adapter.Send(context.Background(), buildMessage())
	if !errors.Is(err, common.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if resp.Status != common.StatusRateLimited {
		t.Fatalf("expected rate_limited status, got %s", resp.Status)
	}
}

func TestAdapterForwardsMessageFields(t *testing.T) {
	provider := &recordingProvider{resp: &smsprovider.RawResponse{
		ID:        "SM1",
		Code:      201,
		Status:    "queued",
		Body:      "0123456789",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	adapter, err := smsadapter.NewAdapter(provider, zerolog.Nop(), smsadapter.WithRawBodyLimit(4))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	msg := buildMessage()
	msg.Meta = map[string]string{"status_callback": "https://cb.example", "blank": " "}
	resp, err := adapter.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	got := provider.payload
	if got.To != msg.To || got.Body != msg.Body || got.Sender != msg.Sender {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if got.Meta["batch_id"] != "batch-1" || got.Meta["contact_id"] != "c1" {
		t.Fatalf("expected batch and contact ids in meta, got %+v", got.Meta)
	}
	if got.Meta["status_callback"] != "https://cb.example" {
		t.Fatalf("expected caller meta forwarded, got %+v", got.Meta)
	}
	if _, ok := got.Meta["blank"]; ok {
		t.Fatalf("blank meta values should be dropped")
	}
	if resp.Raw != "0123" {
		t.Fatalf("expected raw body truncated to 4 chars, got %q", resp.Raw)
	}
	if resp.Meta["provider_timestamp"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected provider timestamp: %+v", resp.Meta)
	}
}

func TestAdapterClassifiesUnknownErrorsAsTransient(t *testing.T) {
	provider := &recordingProvider{err: errors.New("connection reset by peer")}
	adapter, err := smsadapter.NewAdapter(provider, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	resp, err := adapter.Send(context.Background(), buildMessage())
	if !errors.Is(err, common.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if resp.Status != common.StatusUnknown {
		t.Fatalf("expected unknown status, got %s", resp.Status)
	}
}

func TestAdapterRejectsNilMessage(t *testing.T) {
	adapter, err := smsadapter.NewAdapter(smsprovider.NewMockProvider(zerolog.Nop()), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, err := adapter.Send(context.Background(), nil); !errors.Is(err, common.ErrPermanent) {
		t.Fatalf("expected permanent error for nil message, got %v", err)
	}
}

func TestNewAdapterRequiresProvider(t *testing.T) {
	if _, err := smsadapter.NewAdapter(nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}

func buildMessage() *common.OutboundMessage {
	return &common.OutboundMessage{
		BatchID:     "batch-1",
		RecipientID: "c1",
		To:          "+15550000001",
		Body:        "hello",
		Sender:      smsprovider.Sender{FromNumber: "+15005550006"},
	}
}
