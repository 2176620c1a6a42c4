package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-x-search/internal/app"
)

var (
	rescanLimit  int
	rescanDryRun bool
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Search again every wallet whose stored verdict has an error",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rescanLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}

		opts := app.RescanOptions{
			Limit:  rescanLimit,
			DryRun: rescanDryRun,
		}

		return getApp().Rescan(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	rescanCmd.Flags().IntVar(&rescanLimit, "limit", 0, "Maximum wallets to rescan (defaults to export.max_rows)")
	rescanCmd.Flags().BoolVar(&rescanDryRun, "dry-run", false, "List the wallets without searching")
}
