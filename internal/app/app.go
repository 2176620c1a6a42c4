package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wallet-x-search/internal/agent"
	"wallet-x-search/internal/alerting"
	"wallet-x-search/internal/config"
	"wallet-x-search/internal/input"
	"wallet-x-search/internal/metrics"
	"wallet-x-search/internal/ratelimit"
	"wallet-x-search/internal/search"
	"wallet-x-search/internal/service"
	"wallet-x-search/internal/storage"
	"wallet-x-search/internal/xai"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newOrchestrator wires the xAI client, the shared request window and both
// agents into a search orchestrator.
func (a *App) newOrchestrator() *search.Orchestrator {
	client := xai.NewClient(xai.Options{
		APIKey:    a.Config.XAI.APIKey,
		BaseURL:   a.Config.XAI.BaseURL,
		Model:     a.Config.XAI.Model,
		Timeout:   a.Config.XAI.RequestTimeout,
		UserAgent: a.Config.XAI.UserAgent,
		Sources:   a.Config.XAI.SearchSources,
	}, a.Logger)

	limiter := ratelimit.New(ratelimit.Options{
		Window:      a.Config.Search.RateWindow,
		MaxRequests: a.Config.Search.RateMaxRequests,
		BaseBackoff: a.Config.Search.BaseBackoff,
		MaxBackoff:  a.Config.Search.MaxBackoff,
	}, a.Logger, ratelimit.WithWaitObserver(func(d time.Duration) {
		metrics.RateLimitWaitSeconds.Observe(d.Seconds())
	}))

	agentOpts := agent.Options{
		MaxRetries: a.Config.Search.MaxRetries,
		RetryStep:  a.Config.Search.RetryStep,
	}
	existence := agent.NewExistence(client, limiter, agentOpts, a.Logger)
	ownership := agent.NewOwnership(client, limiter, agentOpts, a.Logger)

	return search.New(existence, ownership, search.Options{
		Concurrency: a.Config.Search.Concurrency,
		BatchDelay:  a.Config.Search.BatchDelay,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) checkpointStore(store *storage.Store) storage.CheckpointStore {
	if a.Config.Checkpoint.Backend == "postgres" && store != nil {
		return store
	}
	return storage.NewFileCheckpointStore(a.Config.Checkpoint.Path)
}

// session bundles the collaborators of one command invocation.
type session struct {
	svc     *service.Service
	closers []func()
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (a *App) newSession(ctx context.Context, opts service.Options) (*session, error) {
	sess := &session{}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; verdict persistence disabled")
	} else {
		sess.closers = append(sess.closers, closeStore)
	}

	deps := service.Deps{
		Searcher:    a.newOrchestrator(),
		Checkpoints: a.checkpointStore(store),
		Notifier:    a.newNotifier(),
	}
	if store != nil {
		deps.Verdicts = store
		deps.Locker = store
	}

	if a.Config.Output.Path != "" {
		sink, err := service.NewJSONLSink(a.Config.Output.Path, a.Config.Output.RawTextLimit)
		if err != nil {
			sess.close()
			return nil, err
		}
		deps.Sink = sink
		sess.closers = append(sess.closers, func() {
			if err := sink.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close output file")
			}
		})
	}

	sess.svc = service.New(deps, opts, a.Logger)
	return sess, nil
}

func (a *App) serviceOptions(run RunOptions) service.Options {
	return service.Options{
		CheckpointKey:      a.Config.Checkpoint.Key,
		CheckpointInterval: a.Config.Checkpoint.Interval,
		Resume:             a.Config.Checkpoint.Resume && !run.NoResume,
		BatchLimit:         run.BatchLimit,
		LockKey:            a.Config.Scheduler.AdvisoryLockKey,
	}
}

func (a *App) collect(ctx context.Context, src input.Sources) ([]string, error) {
	if src.WalletColumn == "" {
		src.WalletColumn = a.Config.Input.WalletColumn
	}
	collector := input.NewCollector(a.Config.Input.FetchTimeout, a.Logger)
	wallets, err := collector.Collect(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, errors.New("no valid wallet addresses provided")
	}
	a.Logger.Info().Int("wallets", len(wallets)).Msg("wallets collected")
	return wallets, nil
}

// withMetrics runs fn next to the metrics endpoint when one is configured.
func (a *App) withMetrics(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.Config.Metrics.ListenAddr == "" {
		return fn(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(gctx)
	g.Go(func() error {
		return serveMetrics(runCtx, a.Config.Metrics.ListenAddr, a.Logger)
	})
	g.Go(func() error {
		defer stopMetrics()
		return fn(runCtx)
	})
	return g.Wait()
}

// Run executes one resumable search over the collected wallets.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	if err := a.Config.RequireCredentials(); err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	wallets, err := a.collect(ctx, opts.Sources)
	if err != nil {
		return err
	}

	sess, err := a.newSession(ctx, a.serviceOptions(opts))
	if err != nil {
		return err
	}
	defer sess.close()

	if opts.ClearCheckpoint {
		if err := sess.svc.ClearCheckpoint(ctx); err != nil {
			return err
		}
	}

	return a.withMetrics(ctx, func(ctx context.Context) error {
		res, err := sess.svc.Run(ctx, wallets)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				a.Logger.Warn().Int("processed", res.Stats.Processed).Msg("run interrupted; progress saved")
				return nil
			}
			return err
		}
		if !res.Complete {
			a.Logger.Info().Int("remaining", res.Remaining).Msg("run finished with wallets remaining; rerun to continue")
		}
		return nil
	})
}

// RunOptions configure run and watch.
type RunOptions struct {
	Sources         input.Sources
	ClearCheckpoint bool
	NoResume        bool
	BatchLimit      int
}

// ExportOptions hold parameters for exporting stored verdicts.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// RescanOptions configure the rescan job.
type RescanOptions struct {
	Limit  int
	DryRun bool
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func requireStore(store *storage.Store, what string) error {
	if store == nil {
		return fmt.Errorf("database not configured; cannot %s", what)
	}
	return nil
}
