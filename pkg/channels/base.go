package channels

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
)

// ErrNotRunning is returned by Send on a channel that was never started or
// has been stopped.
var ErrNotRunning = errors.New("channel is not running")

// Sender delivers one outbound message.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg bus.OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, msg bus.OutboundMessage) error { return f(ctx, msg) }

// Channel is an outbound transport with an explicit lifecycle.
type Channel interface {
	Sender
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// Longer messages are split before sending. A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// BaseChannel carries the state shared by every transport.
type BaseChannel struct {
	name             string
	running          atomic.Bool
	maxMessageLength int
}

func NewBaseChannel(name string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{name: name}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// MaxMessageLength returns the maximum message length (in runes) for this channel.
// A value of 0 means no limit.
func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// sendChunks splits msg by the channel limit and hands every part to send.
// The keyboard is attached to the last part only so the menu stays below the
// full text.
func (c *BaseChannel) sendChunks(
	ctx context.Context,
	msg bus.OutboundMessage,
	send func(context.Context, bus.OutboundMessage) error,
) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}

	parts := SplitMessage(msg.Text, c.maxMessageLength)
	for i, part := range parts {
		chunk := bus.OutboundMessage{
			ChatID:    msg.ChatID,
			Text:      part,
			ParseMode: msg.ParseMode,
		}
		if i == len(parts)-1 {
			chunk.Keyboard = msg.Keyboard
		}
		if err := send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}
