// Package api serves the HTTP surface: batch send, preview, health and
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/persona-dispatch/internal/batch"
	"github.com/ajayykmr/persona-dispatch/internal/dispatch"
	"github.com/ajayykmr/persona-dispatch/internal/message"
	"github.com/ajayykmr/persona-dispatch/internal/metrics"
	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// SourceHTTP tags events and metrics produced by the API.
const SourceHTTP = "http"

// MsgUnexpected is the body of any error that is neither validation nor
// configuration.
const MsgUnexpected = "Unexpected error."

// Dispatcher sends a batch and reports whether it could.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch models.Batch) ([]models.DispatchOutcome, error)
	Ready() error
}

// EventPublisher reports finished batches.
type EventPublisher interface {
	PublishBatchEvent(ctx context.Context, event models.BatchEvent) error
}

// SendResponse is the body of a successful send.
type SendResponse struct {
	BatchID string                   `json:"batchId"`
	Results []models.DispatchOutcome `json:"results"`
}

// Preview is the rendered message for one contact.
type Preview struct {
	ContactID string `json:"contactId"`
	Body      string `json:"body"`
}

// PreviewResponse is the body of a successful preview.
type PreviewResponse struct {
	Previews []Preview `json:"previews"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Backend    string `json:"backend"`
	Configured bool   `json:"configured"`
	Events     bool   `json:"events"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithPublisher enables batch events.
func WithPublisher(p EventPublisher) HandlerOption {
	return func(h *Handler) {
		h.publisher = p
	}
}

// WithFormat sets the composition policy used by preview.
func WithFormat(f message.Format) HandlerOption {
	return func(h *Handler) {
		h.format = f
	}
}

// WithBackend names the provider backend reported by health.
func WithBackend(name string) HandlerOption {
	return func(h *Handler) {
		h.backend = name
	}
}

// WithMaxBodyBytes caps request bodies. Zero or negative disables the cap.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler implements the API endpoints.
type Handler struct {
	dispatcher   Dispatcher
	publisher    EventPublisher
	format       message.Format
	backend      string
	maxBodyBytes int64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewHandler constructs a Handler around the dispatcher.
func NewHandler(d Dispatcher, logger zerolog.Logger, opts ...HandlerOption) (*Handler, error) {
	if d == nil {
		return nil, errors.New("api: dispatcher dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	h := &Handler{
		dispatcher:   d,
		format:       message.DefaultFormat(),
		backend:      "unknown",
		maxBodyBytes: 1 << 20,
		logger:       logger.With().Str("component", "api").Logger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Send handles POST /api/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		metrics.IncBatch(SourceHTTP, metrics.ResultInvalid)
		return
	}
	b := req.Batch()

	// Sends outlive a disconnected client so every recipient still settles.
	ctx := context.WithoutCancel(r.Context())
	outcomes, err := h.dispatcher.Dispatch(ctx, b)
	if err != nil {
		h.dispatchFailed(ctx, w, b.ID, err)
		return
	}

	sent, failed := models.CountOutcomes(outcomes)
	metrics.IncBatch(SourceHTTP, metrics.ResultCompleted)
	h.publish(ctx, models.BatchEvent{
		BatchID:   b.ID,
		Source:    SourceHTTP,
		Status:    models.BatchEventCompleted,
		Results:   outcomes,
		Sent:      sent,
		Failed:    failed,
		Timestamp: h.now().UTC(),
	})

	writeJSON(w, http.StatusOK, SendResponse{BatchID: b.ID, Results: outcomes})
}

func (h *Handler) dispatchFailed(ctx context.Context, w http.ResponseWriter, batchID string, err error) {
	status := http.StatusInternalServerError
	body := MsgUnexpected
	result := metrics.ResultFailed

	switch {
	case errors.Is(err, dispatch.ErrInvalidBatch):
		status = http.StatusBadRequest
		body = batch.ErrInvalidRequest.Error()
		result = metrics.ResultInvalid
	case errors.Is(err, dispatch.ErrConfiguration):
		body = err.Error()
		result = metrics.ResultMisconfigured
	default:
		h.logger.Error().Str("batch_id", batchID).Err(err).Msg("dispatch failed")
	}

	metrics.IncBatch(SourceHTTP, result)
	h.publish(ctx, models.BatchEvent{
		BatchID:   batchID,
		Source:    SourceHTTP,
		Status:    models.BatchEventFailed,
		Error:     body,
		Timestamp: h.now().UTC(),
	})
	writeError(w, status, body)
}

// Preview handles POST /api/preview. It renders every contact's message
// without contacting the provider.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	b := req.Batch()

	previews := make([]Preview, len(b.Recipients))
	for i, recipient := range b.Recipients {
		previews[i] = Preview{
			ContactID: recipient.ID,
			Body:      h.format.Build(b.Persona, recipient, b.Template),
		}
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Previews: previews})
}

// Health handles GET /healthz. It always answers 200; configured reports
// whether a send would be attempted.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Backend:    h.backend,
		Configured: h.dispatcher.Ready() == nil,
		Events:     h.publisher != nil,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*batch.Request, bool) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	req, err := batch.Decode(body)
	if err != nil {
		cause := err
		var invalid *batch.InvalidRequestError
		if errors.As(err, &invalid) && invalid.Err != nil {
			cause = invalid.Err
		}
		h.logger.Debug().Err(cause).Msg("request rejected")
		writeError(w, http.StatusBadRequest, batch.ErrInvalidRequest.Error())
		return nil, false
	}
	return req, true
}

func (h *Handler) publish(ctx context.Context, event models.BatchEvent) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishBatchEvent(ctx, event); err != nil {
		h.logger.Error().
			Str("batch_id", event.BatchID).
			Str("status", event.Status).
			Err(err).
			Msg("failed to publish batch event")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
