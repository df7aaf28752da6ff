package producer

import (
	"context"

	"github.com/MahirK1/p-sub001/pkg/event"
)

// Producer publishes portal events to the broker. It does NOT consume.
type Producer interface {
	Publish(ctx context.Context, evt *event.PortalEvent) error
	Close() error
}

// Noop is used when the broker is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, *event.PortalEvent) error { return nil }
func (Noop) Close() error                                      { return nil }
