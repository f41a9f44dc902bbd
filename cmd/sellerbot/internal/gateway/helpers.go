package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
	"github.com/tinyland-inc/sellerbot/pkg/app"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
	"github.com/tinyland-inc/sellerbot/pkg/health"
	"github.com/tinyland-inc/sellerbot/pkg/keepalive"
	"github.com/tinyland-inc/sellerbot/pkg/logger"
	"github.com/tinyland-inc/sellerbot/pkg/metrics"
	"github.com/tinyland-inc/sellerbot/pkg/session"
	"github.com/tinyland-inc/sellerbot/pkg/webhook"
)

const (
	pollTimeoutSeconds = 30
	shutdownTimeout    = 30 * time.Second
)

func gatewayCmd(configPath string, debug, polling bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		cfg.LogLevel = "debug"
	}

	m := metrics.New()
	coordinator := app.NewCoordinator(func() (*config.Config, error) { return cfg, nil }, app.Options{Metrics: m})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A persistent process builds at startup so bad credentials stop it early.
	s, err := coordinator.EnsureSession(ctx)
	if err != nil {
		return err
	}

	// Everything that can refuse to start is checked before the listener is up.
	pinger, tc, err := prepare(cfg, s, polling)
	if err != nil {
		return err
	}

	server := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, nil)
	server.Router().Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	if !polling {
		webhook.Register(server.Router(), cfg.Webhook.Path, coordinator,
			webhook.WithSecretToken(cfg.Webhook.SecretToken))
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "HTTP server error", map[string]any{"error": err.Error()})
			cancel()
		}
	}()
	fmt.Printf("✓ Gateway listening on %s\n", server.Addr())
	if !polling {
		fmt.Printf("✓ Webhook route: %s\n", cfg.Webhook.Path)
	}

	if pinger != nil {
		go pinger.Run(ctx)
		fmt.Printf("✓ Keep-alive pinging %s\n", pinger.Target())
	}

	pollDone := make(chan error, 1)
	if tc != nil {
		go func() { pollDone <- poll(ctx, tc.Bot(), coordinator) }()
		fmt.Println("✓ Long polling started")
	} else {
		close(pollDone)
	}

	fmt.Println("Press Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.ErrorCF("gateway", "HTTP server shutdown failed", map[string]any{"error": err})
	}
	if err := <-pollDone; err != nil {
		logger.ErrorCF("gateway", "Long polling failed", map[string]any{"error": err})
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCF("gateway", "Session shutdown failed", map[string]any{"error": err})
	}
	fmt.Println("✓ Gateway stopped")

	return nil
}

// prepare builds the keep-alive pinger when enabled and, for long polling,
// resolves the Telegram channel. Both are nil when not needed.
func prepare(cfg *config.Config, s *session.Session, polling bool) (*keepalive.Pinger, *channels.TelegramChannel, error) {
	var pinger *keepalive.Pinger
	if cfg.KeepAlive.Enabled {
		p, err := keepalive.New(cfg.KeepAlive.URL, cfg.KeepAlive.Schedule)
		if err != nil {
			return nil, nil, err
		}
		pinger = p
	}

	if !polling {
		return pinger, nil, nil
	}
	tc, ok := s.Channel().(*channels.TelegramChannel)
	if !ok {
		return nil, nil, fmt.Errorf("long polling needs the telegram channel, got %s", s.Channel().Name())
	}
	return pinger, tc, nil
}

// poll feeds getUpdates results into the coordinator until ctx ends. Updates
// from one user run in arrival order; different users run concurrently.
func poll(ctx context.Context, bot *telego.Bot, coordinator *session.Coordinator) error {
	if err := channels.DeleteWebhook(ctx, bot, false); err != nil {
		return err
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        pollTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("starting long polling: %w", err)
	}

	seq := session.NewSequencer()
	for u := range updates {
		seq.Submit(session.SenderKey(u), func() {
			if err := coordinator.DispatchUpdate(ctx, u); err != nil {
				logger.ErrorCF("gateway", "Update dispatch failed", map[string]any{
					"update_id": u.UpdateID,
					"error":     err,
				})
			}
		})
	}
	seq.Wait()
	return nil
}
