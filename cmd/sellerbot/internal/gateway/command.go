package gateway

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
)

func NewGatewayCommand() *cobra.Command {
	var debug bool
	var polling bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Start the sellerbot gateway",
		Long: "Serve the Telegram webhook, health probes and metrics over HTTP. " +
			"With --polling, updates are pulled with getUpdates instead of pushed to the webhook.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return gatewayCmd(internal.ConfigFlag(cmd), debug, polling)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&polling, "polling", false, "Receive updates by long polling instead of the webhook")

	return cmd
}
