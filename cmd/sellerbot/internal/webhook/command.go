package webhook

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
	"github.com/tinyland-inc/sellerbot/pkg/channels"
	"github.com/tinyland-inc/sellerbot/pkg/config"
)

const requestTimeout = 30 * time.Second

func NewWebhookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
		Example: `  sellerbot webhook set https://bot.example.com
  sellerbot webhook set https://bot.example.com/api/webhook --drop-pending
  sellerbot webhook delete`,
	}

	cmd.AddCommand(newSetCommand(), newDeleteCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	var dropPending bool

	cmd := &cobra.Command{
		Use:   "set [url]",
		Short: "Point Telegram at the webhook URL",
		Long: "Register the webhook with Telegram. A URL without a path gets the configured " +
			"webhook path appended. Without an argument the configured webhook URL is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig(internal.ConfigFlag(cmd))
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			raw := cfg.Webhook.URL
			if len(args) == 1 {
				raw = args[0]
			}
			target, err := WebhookURL(raw, cfg.Webhook.Path)
			if err != nil {
				return err
			}

			bot, err := channels.NewBot(botConfig(cfg))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := channels.SetWebhook(ctx, bot, target, cfg.Webhook.SecretToken, dropPending); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Webhook set to %s\n", target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Discard updates queued while no webhook was set")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var dropPending bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(internal.ConfigFlag(cmd))
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}

			bot, err := channels.NewBot(botConfig(cfg))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := channels.DeleteWebhook(ctx, bot, dropPending); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Webhook deleted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Discard updates queued for the webhook")
	return cmd
}

func botConfig(cfg *config.Config) channels.TelegramConfig {
	return channels.TelegramConfig{
		Token:     cfg.Telegram.Token,
		APIServer: cfg.Telegram.APIServer,
		Timeout:   cfg.Gateway.RequestTimeout,
	}
}

// WebhookURL validates raw as an https URL and appends path when raw has
// none.
func WebhookURL(raw, path string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("no webhook URL given and SELLERBOT_WEBHOOK_URL is not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL %q: %w", raw, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("webhook URL must be an absolute https URL, got %q", raw)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = path
	}
	return u.String(), nil
}
