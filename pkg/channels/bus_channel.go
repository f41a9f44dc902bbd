package channels

import (
	"context"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
)

// BusChannel publishes replies on a MessageBus instead of a chat platform.
// The console command reads them back from the outbound side.
type BusChannel struct {
	*BaseChannel

	bus *bus.MessageBus
}

func NewBusChannel(mb *bus.MessageBus, opts ...BaseChannelOption) *BusChannel {
	return &BusChannel{
		BaseChannel: NewBaseChannel("bus", opts...),
		bus:         mb,
	}
}

func (c *BusChannel) Start(_ context.Context) error {
	c.SetRunning(true)
	return nil
}

func (c *BusChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return nil
}

func (c *BusChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return c.sendChunks(ctx, msg, c.bus.PublishOutbound)
}
