package channels

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
)

type TelegramConfig struct {
	Token string
	// APIServer overrides the Bot API base URL (tests, local bot API server).
	APIServer string
	Timeout   time.Duration
}

// TelegramChannel delivers replies through the Telegram Bot API.
type TelegramChannel struct {
	*BaseChannel

	config TelegramConfig
	mu     sync.Mutex
	bot    *telego.Bot
}

func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", WithMaxMessageLength(TelegramMaxMessageLength)),
		config:      cfg,
	}
}

// Start builds the bot client. It performs no network call, so it is cheap
// enough to run inside a webhook invocation.
func (c *TelegramChannel) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		return nil
	}

	bot, err := NewBot(c.config)
	if err != nil {
		return err
	}
	c.bot = bot
	c.SetRunning(true)

	logger.InfoC("telegram", "Telegram channel started")
	return nil
}

func (c *TelegramChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	logger.InfoC("telegram", "Telegram channel stopped")
	return nil
}

// Bot returns the underlying client, nil before Start.
func (c *TelegramChannel) Bot() *telego.Bot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return c.sendChunks(ctx, msg, c.sendOne)
}

func (c *TelegramChannel) sendOne(ctx context.Context, msg bus.OutboundMessage) error {
	bot := c.Bot()
	if bot == nil {
		return ErrNotRunning
	}

	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: msg.ChatID},
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
	}
	if len(msg.Keyboard) > 0 {
		params.ReplyMarkup = replyKeyboard(msg.Keyboard)
	}

	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func replyKeyboard(kb bus.Keyboard) *telego.ReplyKeyboardMarkup {
	rows := make([][]telego.KeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telego.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, telego.KeyboardButton{Text: label})
		}
		rows = append(rows, buttons)
	}
	return &telego.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}

// NewBot builds a telego client over net/http so that request deadlines and
// test servers behave the same as for the marketplace clients.
func NewBot(cfg TelegramConfig) (*telego.Bot, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []telego.BotOption{
		telego.WithDiscardLogger(),
		telego.WithAPICaller(ta.HTTPCaller{Client: &http.Client{Timeout: timeout}}),
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return bot, nil
}

// SetWebhook registers url as the update destination for the bot.
func SetWebhook(ctx context.Context, bot *telego.Bot, url, secret string, dropPending bool) error {
	err := bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:                url,
		SecretToken:        secret,
		DropPendingUpdates: dropPending,
		AllowedUpdates:     []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func DeleteWebhook(ctx context.Context, bot *telego.Bot, dropPending bool) error {
	if err := bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return nil
}
