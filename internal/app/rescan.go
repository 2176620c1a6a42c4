package app

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Rescan re-searches wallets whose stored verdict carries an error.
func (a *App) Rescan(ctx context.Context, opts RescanOptions, out io.Writer) error {
	if !opts.DryRun {
		if err := a.Config.RequireCredentials(); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireStore(store, "rescan"); err != nil {
		return err
	}
	defer closeStore()

	limit := a.Config.ResolveMaxRows(opts.Limit)
	wallets, err := store.ListErroredWallets(ctx, limit)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		fmt.Fprintln(out, "no errored verdicts to rescan")
		return nil
	}

	if opts.DryRun {
		a.Logger.Warn().Int("wallets", len(wallets)).Msg("rescan dry-run: nothing will be searched")
		for _, w := range wallets {
			fmt.Fprintln(out, w)
		}
		return nil
	}

	svcOpts := a.serviceOptions(RunOptions{NoResume: true})
	svcOpts.CheckpointKey = a.Config.Checkpoint.Key + "-rescan"

	sess, err := a.newSession(ctx, svcOpts)
	if err != nil {
		return err
	}
	defer sess.close()

	res, err := sess.svc.Run(ctx, wallets)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Int("rescanned", res.Stats.Processed).
		Int("still_errored", res.Stats.Errors).
		Msg("rescan finished")
	if res.Stats.Errors > 0 {
		return fmt.Errorf("%d wallets still errored after rescan", res.Stats.Errors)
	}
	return nil
}
