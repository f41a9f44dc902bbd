package console

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/session"
)

// Console feeds typed lines to the coordinator as if they came from one
// Telegram user and prints the replies collected on the bus.
type Console struct {
	coordinator *session.Coordinator
	mb          *bus.MessageBus
	userID      int64
	out         io.Writer

	handled chan struct{}
	seq     int
}

func New(coordinator *session.Coordinator, mb *bus.MessageBus, userID int64, out io.Writer) *Console {
	return &Console{
		coordinator: coordinator,
		mb:          mb,
		userID:      userID,
		out:         out,
		handled:     make(chan struct{}),
	}
}

// Serve handles inbound lines until ctx ends or the bus closes.
func (c *Console) Serve(ctx context.Context) {
	for {
		in, ok := c.mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		c.seq++
		if err := c.coordinator.DispatchUpdate(ctx, toUpdate(c.seq, in)); err != nil {
			logger.ErrorCF("console", "Dispatch failed", map[string]any{"error": err})
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		select {
		case c.handled <- struct{}{}:
		case <-ctx.Done():
			return
		}
	}
}

// Submit sends text as the console user, waits for it to be handled and
// prints every reply.
func (c *Console) Submit(ctx context.Context, text string) error {
	err := c.mb.PublishInbound(ctx, bus.InboundMessage{
		SenderID: c.userID,
		ChatID:   c.userID,
		Text:     text,
	})
	if err != nil {
		return err
	}

	select {
	case <-c.handled:
	case <-ctx.Done():
		return ctx.Err()
	}

	for c.mb.PendingOutbound() > 0 {
		msg, ok := c.mb.SubscribeOutbound(ctx)
		if !ok {
			break
		}
		fmt.Fprintln(c.out, Render(msg))
	}
	return nil
}

func toUpdate(id int, in bus.InboundMessage) telego.Update {
	return telego.Update{
		UpdateID: id,
		Message: &telego.Message{
			MessageID: id,
			Date:      time.Now().Unix(),
			Chat:      telego.Chat{ID: in.ChatID, Type: "private"},
			From:      &telego.User{ID: in.SenderID, FirstName: "console"},
			Text:      in.Text,
		},
	}
}

var htmlTag = regexp.MustCompile(`</?[a-z]+>`)

// Render formats a reply for a terminal: HTML markup is dropped and the
// keyboard is drawn as bracketed buttons under the text.
func Render(msg bus.OutboundMessage) string {
	text := msg.Text
	if msg.ParseMode == telego.ModeHTML {
		text = htmlTag.ReplaceAllString(text, "")
	}

	var b strings.Builder
	b.WriteString(text)
	for _, row := range msg.Keyboard {
		b.WriteString("\n ")
		for _, label := range row {
			fmt.Fprintf(&b, " [%s]", label)
		}
	}
	return b.String()
}
