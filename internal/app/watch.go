package app

import (
	"context"
	"errors"
	"time"

	"wallet-x-search/internal/scheduler"
	"wallet-x-search/internal/service"
)

// Watch processes the input in batch-limited runs on the scheduler interval
// until every wallet has a verdict.
func (a *App) Watch(ctx context.Context, opts RunOptions) error {
	if err := a.Config.RequireCredentials(); err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	wallets, err := a.collect(ctx, opts.Sources)
	if err != nil {
		return err
	}

	if opts.BatchLimit <= 0 {
		opts.BatchLimit = a.Config.Scheduler.BatchLimit
	}
	svcOpts := a.serviceOptions(opts)
	// successive runs only make progress when they resume
	svcOpts.Resume = true

	sess, err := a.newSession(ctx, svcOpts)
	if err != nil {
		return err
	}
	defer sess.close()

	if opts.ClearCheckpoint {
		if err := sess.svc.ClearCheckpoint(ctx); err != nil {
			return err
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	a.Logger.Info().Int("wallets", len(wallets)).
		Int("batch_limit", svcOpts.BatchLimit).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting watch")

	err = a.withMetrics(ctx, func(ctx context.Context) error {
		return sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
			return a.watchTick(ctx, sess.svc, wallets)
		})
	})
	if errors.Is(err, context.Canceled) {
		a.Logger.Info().Msg("watch stopped")
		return nil
	}
	return err
}

func (a *App) watchTick(ctx context.Context, svc *service.Service, wallets []string) error {
	res, err := svc.Run(ctx, wallets)
	if errors.Is(err, service.ErrLockHeld) {
		a.Logger.Debug().Msg("skip tick because another run holds the lock")
		return nil
	}
	if err != nil {
		return err
	}
	if res.Complete {
		a.Logger.Info().Str("run_id", res.RunID).Msg("all wallets processed")
		return scheduler.ErrStop
	}
	a.Logger.Info().Int("remaining", res.Remaining).Msg("batch done, waiting for next tick")
	return nil
}
