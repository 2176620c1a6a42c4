package cli

import (
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <wallet>",
	Short: "Search a single wallet and print the verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}
