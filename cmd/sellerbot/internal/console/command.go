package console

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/sellerbot/cmd/sellerbot/internal"
)

func NewConsoleCommand() *cobra.Command {
	var debug bool
	var userID int64

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Operate the bot from the terminal",
		Long: "Type menu labels and commands as a Telegram user would. Replies are printed " +
			"instead of sent; marketplace calls are real.",
		Example: `  sellerbot console
  sellerbot console --as 123456789`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return consoleCmd(internal.ConfigFlag(cmd), userID, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().Int64Var(&userID, "as", 0, "Telegram user id to act as (default: first admin)")

	return cmd
}
