package push

import "context"

// Provider hands an already encoded payload to one push subscription.
// Non-2xx answers must be reported as *StatusError.
type Provider interface {
	Type() string
	Send(ctx context.Context, sub Subscription, payload []byte) error
}
