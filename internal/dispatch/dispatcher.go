// Package dispatch fans a batch out to the SMS provider, one concurrent send
// per recipient, and gathers the settled results into ordered outcomes.
package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	common "github.com/ajayykmr/persona-dispatch/internal/adapters/common"
	"github.com/ajayykmr/persona-dispatch/internal/message"
	"github.com/ajayykmr/persona-dispatch/internal/metrics"
	"github.com/ajayykmr/persona-dispatch/internal/models"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithFormat sets the message composition policy.
func WithFormat(f message.Format) Option {
	return func(d *Dispatcher) {
		d.format = f
	}
}

// WithSendTimeout bounds each individual send. Zero disables the bound.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout >= 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithUnavailable records why no adapter could be built. Every dispatch then
// fails with a ConfigurationError wrapping cause.
func WithUnavailable(cause error) Option {
	return func(d *Dispatcher) {
		d.unavailable = cause
	}
}

// Dispatcher sends the rendered message of a batch to every recipient.
type Dispatcher struct {
	adapter     common.Adapter
	sender      smsprovider.Sender
	format      message.Format
	sendTimeout time.Duration
	unavailable error
	logger      zerolog.Logger
}

// New constructs a Dispatcher. A nil adapter is accepted: the dispatcher then
// reports a configuration error for every batch.
func New(adapter common.Adapter, sender smsprovider.Sender, logger zerolog.Logger, opts ...Option) *Dispatcher {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	d := &Dispatcher{
		adapter: adapter,
		sender:  sender,
		format:  message.DefaultFormat(),
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Ready reports the configuration error Dispatch would return, if any.
func (d *Dispatcher) Ready() error {
	if d.adapter == nil {
		return &ConfigurationError{Err: d.unavailable}
	}
	if err := d.sender.Validate(); err != nil {
		return &ConfigurationError{Err: d.unavailable}
	}
	return nil
}

// Dispatch sends one message per recipient and returns the outcomes in
// recipient order. Every send is started before any is awaited, and a
// failing or panicking send only affects its own outcome. An error is
// returned only when the batch cannot be attempted at all.
func (d *Dispatcher) Dispatch(ctx context.Context, batch models.Batch) ([]models.DispatchOutcome, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}
	if err := d.Ready(); err != nil {
		d.logger.Error().
			Str("batch_id", batch.ID).
			Err(err).
			Msg("batch rejected before sending")
		return nil, err
	}

	start := time.Now()
	settled := make([]Settled, len(batch.Recipients))

	var g errgroup.Group
	for i, recipient := range batch.Recipients {
		i, recipient := i, recipient
		g.Go(func() error {
			settled[i] = d.send(ctx, batch, recipient)
			return nil
		})
	}
	_ = g.Wait()

	outcomes := Aggregate(batch.Recipients, settled)
	sent, failed := models.CountOutcomes(outcomes)
	elapsed := time.Since(start)
	metrics.AddOutcomes(sent, failed)
	metrics.ObserveBatchDuration(elapsed.Seconds())

	d.logger.Info().
		Str("batch_id", batch.ID).
		Int("recipients", len(batch.Recipients)).
		Int("sent", sent).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("batch dispatched")

	return outcomes, nil
}

// send never lets a panic escape: the recovered value becomes the
// rejection reason of this recipient alone.
func (d *Dispatcher) send(ctx context.Context, batch models.Batch, recipient models.Recipient) (result Settled) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Warn().
				Str("batch_id", batch.ID).
				Str("contact_id", recipient.ID).
				Str("panic", fmt.Sprint(rec)).
				Msg("send panicked")
			result = Settled{Reason: rec}
		}
	}()

	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	msg := &common.OutboundMessage{
		BatchID:     batch.ID,
		RecipientID: recipient.ID,
		To:          recipient.Phone,
		Body:        d.format.Build(batch.Persona, recipient, batch.Template),
		Sender:      d.sender,
	}

	resp, err := d.adapter.Send(ctx, msg)
	if err != nil {
		status := common.StatusUnknown
		if resp != nil && resp.Status != "" {
			status = resp.Status
		}
		d.logger.Warn().
			Str("batch_id", batch.ID).
			Str("contact_id", recipient.ID).
			Str("provider_status", status).
			Err(err).
			Msg("send failed")
		return Settled{Reason: err}
	}

	providerID := ""
	if resp != nil {
		providerID = resp.ProviderID
	}
	return Settled{
		Fulfilled: true,
		Outcome: models.DispatchOutcome{
			RecipientID: recipient.ID,
			Status:      models.OutcomeSent,
			Detail:      sentDetail(providerID),
		},
	}
}

func validateBatch(batch models.Batch) error {
	switch {
	case len(batch.Recipients) == 0:
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidBatch)
	case batch.Persona.Name == "":
		return fmt.Errorf("%w: persona name is required", ErrInvalidBatch)
	case batch.Template == "":
		return fmt.Errorf("%w: template is required", ErrInvalidBatch)
	}
	return nil
}
