package common

import smsprovider "github.com/ajayykmr/persona-dispatch/internal/providers/sms"

// OutboundMessage is one rendered message addressed to one recipient. The
// dispatcher builds it and hands it to an adapter.
type OutboundMessage struct {
	BatchID     string
	RecipientID string
	To          string
	Body        string
	Sender      smsprovider.Sender
	Meta        map[string]string
}
