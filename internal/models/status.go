package models

import "time"

// Outcome statuses reported per recipient.
const (
	OutcomeSent  = "sent"
	OutcomeError = "error"
)

// Batch event statuses.
const (
	BatchEventCompleted = "completed"
	BatchEventFailed    = "failed"
)

// DispatchOutcome is the settled result of one recipient's send.
type DispatchOutcome struct {
	RecipientID string `json:"contactId"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
}

// Sent reports whether the provider accepted the message.
func (o DispatchOutcome) Sent() bool { return o.Status == OutcomeSent }

// BatchEvent is emitted once a batch has been handled, either with the
// full outcome list or with the whole-batch error that prevented sending.
type BatchEvent struct {
	BatchID   string            `json:"batch_id"`
	Source    string            `json:"source"`
	Status    string            `json:"status"`
	Results   []DispatchOutcome `json:"results,omitempty"`
	Error     string            `json:"error,omitempty"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Timestamp time.Time         `json:"timestamp"`
}

// CountOutcomes tallies sent and failed outcomes.
func CountOutcomes(outcomes []DispatchOutcome) (sent, failed int) {
	for _, o := range outcomes {
		if o.Sent() {
			sent++
			continue
		}
		failed++
	}
	return sent, failed
}
