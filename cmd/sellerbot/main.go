// SellerBot - Telegram control bot for a Magnit marketplace seller account
// License: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal/console"
	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal/gateway"
	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal/status"
	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal/version"
	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal/webhook"
)

func NewSellerbotCommand() *cobra.Command {
	short := fmt.Sprintf("%s sellerbot - Magnit seller control bot v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "sellerbot",
		Short:   short,
		Example: "sellerbot gateway --polling",
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"YAML config file (default: $SELLERBOT_CONFIG or ~/.sellerbot/config.yaml)")

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		webhook.NewWebhookCommand(),
		console.NewConsoleCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewSellerbotCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
