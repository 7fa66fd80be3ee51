package common

import "context"

// Adapter converts an outbound message into a provider call and returns a
// normalized ProviderResponse alongside a classified error.
type Adapter interface {
	Send(ctx context.Context, msg *OutboundMessage) (*ProviderResponse, error)
}
