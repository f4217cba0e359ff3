package bus

import (
	"context"

	"github.com/navincodesalot/moonshot/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.ReportEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.ReportEvent)) error
	Close() error
}

// Nop drops every event. Used when no REDIS_ADDR is configured.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(context.Context, realtime.ReportEvent) error { return nil }
func (nopBus) StartForwarder(context.Context, func(realtime.ReportEvent)) error {
	return nil
}
func (nopBus) Close() error { return nil }
