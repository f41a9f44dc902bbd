package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
)

func NewStatusCommand() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Check configuration and the Telegram webhook",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(internal.ConfigFlag(cmd))
			if err != nil {
				return fmt.Errorf("configuration invalid:\n%w", err)
			}
			out := cmd.OutOrStdout()
			printConfig(out, cfg)

			if !remote {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return printWebhook(ctx, out, cfg)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also query Telegram for the registered webhook")
	return cmd
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "%s sellerbot %s\n", internal.Logo, internal.FormatVersion())
	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "  Admins: %d\n", len(cfg.Telegram.AdminIDs))
	fmt.Fprintf(out, "  Magnit: %s (warehouse %s)\n", cfg.Magnit.BaseURL, cfg.Magnit.WarehouseID)
	fmt.Fprintf(out, "  Ozon: %s\n", cfg.Ozon.BaseURL)
	fmt.Fprintf(out, "  Gateway: %s, webhook %s\n", cfg.ListenAddr(), cfg.Webhook.Path)
	fmt.Fprintf(out, "  Flush timeout: %s\n", cfg.Webhook.FlushTimeout)
	if cfg.KeepAlive.Enabled {
		fmt.Fprintf(out, "  Keep-alive: %s (%s)\n", cfg.KeepAlive.URL, cfg.KeepAlive.Schedule)
	}
}

func printWebhook(ctx context.Context, out io.Writer, cfg *config.Config) error {
	bot, err := channels.NewBot(channels.TelegramConfig{
		Token:     cfg.Telegram.Token,
		APIServer: cfg.Telegram.APIServer,
		Timeout:   cfg.Gateway.RequestTimeout,
	})
	if err != nil {
		return err
	}

	info, err := bot.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching webhook info: %w", err)
	}

	if info.URL == "" {
		fmt.Fprintln(out, "  Webhook: not set (long polling)")
		return nil
	}
	fmt.Fprintf(out, "  Webhook: %s\n", info.URL)
	fmt.Fprintf(out, "  Pending updates: %d\n", info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		fmt.Fprintf(out, "  Last error: %s\n", strings.TrimSpace(info.LastErrorMessage))
	}
	return nil
}
