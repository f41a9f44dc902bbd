// Package app assembles the bot from configuration: marketplace clients,
// the operator dispatcher and the Telegram transport, registered on one
// session behind a coordinator.
package app

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/dispatcher"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/marketplace"
	"github.com/tinyland-inc/sellerbot/pkg/metrics"
	"github.com/tinyland-inc/sellerbot/pkg/session"
)

// HandlerName is the name the dispatcher is registered under.
const HandlerName = "dispatcher"

// LoadFunc produces a validated configuration.
type LoadFunc func() (*config.Config, error)

type Options struct {
	// Metrics receives upstream, init and dispatch measurements. Optional.
	Metrics *metrics.Metrics
	// Channel replaces the Telegram transport, for the console and tests.
	Channel channels.Channel
}

// BuildSession wires a session for cfg. The session is not started.
func BuildSession(cfg *config.Config, opts Options) (*session.Session, *dispatcher.Dispatcher, error) {
	var observer marketplace.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	magnit := marketplace.NewMagnit(marketplace.MagnitConfig{
		BaseURL:     cfg.Magnit.BaseURL,
		APIKey:      cfg.Magnit.APIKey,
		WarehouseID: cfg.Magnit.WarehouseID,
		Currency:    cfg.Magnit.Currency,
		Timeout:     cfg.Gateway.RequestTimeout,
	}, observer)
	ozon := marketplace.NewOzon(marketplace.OzonConfig{
		BaseURL:  cfg.Ozon.BaseURL,
		ClientID: cfg.Ozon.ClientID,
		APIKey:   cfg.Ozon.APIKey,
		Timeout:  cfg.Gateway.RequestTimeout,
	}, observer)

	d := dispatcher.New(marketplace.NewService(magnit, ozon), cfg.Telegram.AdminIDs)

	ch := opts.Channel
	if ch == nil {
		ch = channels.NewTelegramChannel(channels.TelegramConfig{
			Token:     cfg.Telegram.Token,
			APIServer: cfg.Telegram.APIServer,
			Timeout:   cfg.Gateway.RequestTimeout,
		})
	}

	s := session.New(ch)
	if err := s.Handle(HandlerName, session.MatchText, d.Handle); err != nil {
		return nil, nil, err
	}
	return s, d, nil
}

// NewCoordinator returns a coordinator whose first event loads the
// configuration through load and builds the session from it. Nothing is read
// or validated before that first event.
func NewCoordinator(load LoadFunc, opts Options) *session.Coordinator {
	var observer session.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	var c *session.Coordinator
	c = session.NewCoordinator(func(context.Context) (*session.Session, error) {
		cfg, err := load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		applyLogLevel(cfg.LogLevel)
		c.SetFlushTimeout(cfg.Webhook.FlushTimeout)

		s, _, err := BuildSession(cfg, opts)
		if err != nil {
			return nil, err
		}
		logger.InfoCF("app", "Bot assembled", map[string]any{
			"admins":    len(cfg.Telegram.AdminIDs),
			"warehouse": cfg.Magnit.WarehouseID,
			"channel":   s.Channel().Name(),
		})
		return s, nil
	}, session.Options{Observer: observer})
	return c
}

func applyLogLevel(name string) {
	if name == "" {
		return
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		logger.WarnCF("app", "Ignoring log level", map[string]any{"error": err})
		return
	}
	logger.SetLevel(level)
}
