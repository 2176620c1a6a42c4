package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wallet-x-search/internal/app"
	"wallet-x-search/internal/input"
)

// inputFlags are shared by run and watch.
type inputFlags struct {
	wallets         []string
	file            string
	stdin           bool
	walletColumn    string
	clearCheckpoint bool
	noResume        bool
	batchLimit      int
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.wallets, "wallet", "w", nil, "Wallet address to search (repeatable or comma separated)")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Path or http(s) URL of a CSV, JSON or text wallet list")
	cmd.Flags().BoolVar(&f.stdin, "stdin", false, "Read a pasted wallet list from standard input")
	cmd.Flags().StringVar(&f.walletColumn, "wallet-column", "", "CSV column holding wallet addresses (defaults to config)")
	cmd.Flags().BoolVar(&f.clearCheckpoint, "clear-checkpoint", false, "Delete saved progress before starting")
	cmd.Flags().BoolVar(&f.noResume, "no-resume", false, "Ignore saved progress for this run")
	cmd.Flags().IntVar(&f.batchLimit, "batch-limit", 0, "Maximum wallets to process in one run (0 = all)")
}

func (f *inputFlags) options(stdin io.Reader) (app.RunOptions, error) {
	if f.batchLimit < 0 {
		return app.RunOptions{}, fmt.Errorf("--batch-limit cannot be negative")
	}

	src := input.Sources{
		Addresses:    f.wallets,
		File:         f.file,
		WalletColumn: f.walletColumn,
	}
	if f.stdin {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return app.RunOptions{}, fmt.Errorf("read stdin: %w", err)
		}
		src.Text = string(data)
	}
	if len(src.Addresses) == 0 && src.File == "" && src.Text == "" {
		return app.RunOptions{}, fmt.Errorf("provide wallets with --wallet, --file or --stdin")
	}

	return app.RunOptions{
		Sources:         src,
		ClearCheckpoint: f.clearCheckpoint,
		NoResume:        f.noResume,
		BatchLimit:      f.batchLimit,
	}, nil
}

var runFlags inputFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search every wallet once, resuming from the last checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runFlags.options(cmd.InOrStdin())
		if err != nil {
			return err
		}
		return getApp().Run(cmd.Context(), opts)
	},
}

func init() {
	runFlags.register(runCmd)
}
