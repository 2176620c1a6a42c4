package cli

import (
	"github.com/spf13/cobra"
)

var watchFlags inputFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process the wallet list in scheduled batches until every wallet is done",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := watchFlags.options(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return getApp().Watch(cmd.Context(), opts)
	},
}

func init() {
	watchFlags.register(watchCmd)
}
