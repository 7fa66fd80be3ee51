package dispatch

import (
	"errors"
	"fmt"

	"github.com/ajayykmr/persona-dispatch/internal/models"
	smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"
)

// UnknownProviderError is the detail reported when a send was rejected with
// something other than an error value.
const UnknownProviderError = "Unknown provider error."

// Settled is the raw result of one send: either a fulfilled outcome or the
// rejection reason, which may be any value a send panicked with.
type Settled struct {
	Fulfilled bool
	Outcome   models.DispatchOutcome
	Reason    any
}

// Aggregate zips recipients with their settlements by position. The result
// always has one outcome per recipient, in recipient order.
func Aggregate(recipients []models.Recipient, settled []Settled) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, len(recipients))
	for i, recipient := range recipients {
		if i >= len(settled) {
			outcomes[i] = models.DispatchOutcome{
				RecipientID: recipient.ID,
				Status:      models.OutcomeError,
				Detail:      "No result recorded for this recipient.",
			}
			continue
		}

		entry := settled[i]
		if entry.Fulfilled {
			outcome := entry.Outcome
			outcome.RecipientID = recipient.ID
			if outcome.Status == "" {
				outcome.Status = models.OutcomeSent
			}
			outcomes[i] = outcome
			continue
		}

		outcomes[i] = models.DispatchOutcome{
			RecipientID: recipient.ID,
			Status:      models.OutcomeError,
			Detail:      ReasonDetail(entry.Reason),
		}
	}
	return outcomes
}

// ReasonDetail turns a rejection reason into the message reported to the
// operator. Provider errors contribute their own message; values that are
// not errors collapse to UnknownProviderError.
func ReasonDetail(reason any) string {
	err, ok := reason.(error)
	if !ok || err == nil {
		return UnknownProviderError
	}
	var perr *smsprovider.ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownProviderError
}

func sentDetail(providerID string) string {
	if providerID == "" {
		return "Message accepted by provider."
	}
	return fmt.Sprintf("Message SID %s", providerID)
}
