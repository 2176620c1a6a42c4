package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wallet-x-search/internal/alerting"
	"wallet-x-search/internal/metrics"
	"wallet-x-search/internal/model"
	"wallet-x-search/internal/search"
	"wallet-x-search/internal/storage"
)

// ErrLockHeld is returned when another process holds the run lock.
var ErrLockHeld = errors.New("service: run lock held elsewhere")

// Searcher runs a batch of wallets through the search pipeline.
type Searcher interface {
	SearchWallets(ctx context.Context, wallets []string, onResult search.ResultFunc, onProgress search.ProgressFunc) ([]model.Verdict, error)
}

// Options tune checkpointing and batch size.
type Options struct {
	CheckpointKey string
	// CheckpointInterval is the number of results between checkpoint writes.
	CheckpointInterval int
	Resume             bool
	// BatchLimit caps the wallets processed per run; 0 means no limit.
	BatchLimit int
	LockKey    int64
}

// Deps are the collaborators of a Service. Only Searcher and Checkpoints are
// required.
type Deps struct {
	Searcher    Searcher
	Checkpoints storage.CheckpointStore
	Verdicts    storage.VerdictStore
	Sink        Sink
	Notifier    alerting.Notifier
	Locker      storage.AdvisoryLocker
}

// Result describes one finished run.
type Result struct {
	RunID     string
	InputHash string
	Stats     model.RunStats
	Verdicts  []model.Verdict
	Remaining int
	Complete  bool
}

// Service runs resumable searches over an input set.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the run service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 10
	}
	if opts.CheckpointKey == "" {
		opts.CheckpointKey = "x-wallet-search-checkpoint"
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InputHash identifies an input set independent of order: the first 12 hex
// characters of the md5 of the sorted, comma-joined wallets.
func InputHash(wallets []string) string {
	sorted := append([]string(nil), wallets...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])[:12]
}

// ClearCheckpoint removes saved progress for the configured key.
func (s *Service) ClearCheckpoint(ctx context.Context) error {
	if err := s.deps.Checkpoints.ClearCheckpoint(ctx, s.opts.CheckpointKey); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	s.logger.Info().Str("key", s.opts.CheckpointKey).Msg("checkpoint cleared")
	return nil
}

// Run searches the wallets not yet covered by the checkpoint, up to the batch
// limit. The checkpoint is saved periodically, on completion and on failure,
// and cleared once every wallet is processed.
func (s *Service) Run(ctx context.Context, wallets []string) (Result, error) {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return Result{}, err
	}
	if unlock != nil {
		defer unlock()
	}

	started := s.now()
	runID := uuid.NewString()
	hash := InputHash(wallets)
	logger := s.logger.With().Str("run_id", runID).Str("input_hash", hash).Logger()

	cp := s.loadCheckpoint(ctx, hash, len(wallets), logger)
	done := cp.ProcessedSet()

	pending := make([]string, 0, max(len(wallets)-len(done), 0))
	for _, w := range wallets {
		if _, ok := done[w]; !ok {
			pending = append(pending, w)
		}
	}
	if s.opts.BatchLimit > 0 && len(pending) > s.opts.BatchLimit {
		logger.Info().Int("pending", len(pending)).Int("batch_limit", s.opts.BatchLimit).Msg("limiting run to batch")
		pending = pending[:s.opts.BatchLimit]
	}

	if len(pending) == 0 {
		logger.Info().Int("wallets", len(wallets)).Msg("all wallets already processed")
		if err := s.deps.Checkpoints.ClearCheckpoint(ctx, s.opts.CheckpointKey); err != nil {
			logger.Warn().Err(err).Msg("failed to clear checkpoint")
		}
		metrics.RunsTotal.WithLabelValues("noop").Inc()
		return Result{RunID: runID, InputHash: hash, Stats: cp.Stats, Complete: true, Verdicts: []model.Verdict{}}, nil
	}

	logger.Info().Int("wallets", len(wallets)).
		Int("already_processed", len(done)).
		Int("this_run", len(pending)).
		Msg("starting run")

	var (
		mu        sync.Mutex
		sinceSave int
	)
	onResult := func(ctx context.Context, v model.Verdict) error {
		var sinkErr error
		if s.deps.Sink != nil {
			sinkErr = s.deps.Sink.Write(v)
		}
		if s.deps.Verdicts != nil {
			if err := s.deps.Verdicts.UpsertVerdict(ctx, runID, v); err != nil {
				logger.Error().Err(err).Str("wallet", v.Wallet).Msg("failed to upsert verdict")
			}
		}

		mu.Lock()
		defer mu.Unlock()
		cp.Stats.Record(v)
		cp.Processed = append(cp.Processed, v.Wallet)
		sinceSave++
		if sinceSave >= s.opts.CheckpointInterval {
			sinceSave = 0
			s.saveCheckpoint(ctx, cp, logger)
		}
		return sinkErr
	}

	alreadyDone := len(done)
	onProgress := func(processed, total int) {
		overall := alreadyDone + processed
		logger.Info().Int("run_processed", processed).
			Int("run_total", total).
			Int("overall_processed", overall).
			Int("overall_total", len(wallets)).
			Str("overall_pct", model.Percent(overall, len(wallets)).String()).
			Msg("progress")
	}

	verdicts, runErr := s.deps.Searcher.SearchWallets(ctx, pending, onResult, onProgress)

	mu.Lock()
	final := cp
	final.Processed = append([]string(nil), cp.Processed...)
	mu.Unlock()

	remaining := len(wallets) - len(final.Processed)
	complete := remaining <= 0

	// saving uses a fresh context so an interrupted run still records progress
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if complete && runErr == nil {
		if err := s.deps.Checkpoints.ClearCheckpoint(saveCtx, s.opts.CheckpointKey); err != nil {
			logger.Warn().Err(err).Msg("failed to clear checkpoint")
		}
	} else {
		s.saveCheckpoint(saveCtx, final, logger)
	}

	result := Result{
		RunID:     runID,
		InputHash: hash,
		Stats:     final.Stats,
		Verdicts:  verdicts,
		Remaining: max(remaining, 0),
		Complete:  complete,
	}
	s.finish(saveCtx, result, started, runErr, logger)

	if runErr != nil {
		return result, fmt.Errorf("search run interrupted: %w", runErr)
	}
	return result, nil
}

func (s *Service) loadCheckpoint(ctx context.Context, hash string, total int, logger zerolog.Logger) storage.Checkpoint {
	fresh := storage.Checkpoint{
		Key:       s.opts.CheckpointKey,
		InputHash: hash,
		Stats:     model.RunStats{Total: total},
	}
	if !s.opts.Resume {
		return fresh
	}

	cp, err := s.deps.Checkpoints.LoadCheckpoint(ctx, s.opts.CheckpointKey)
	switch {
	case errors.Is(err, storage.ErrNoCheckpoint):
		return fresh
	case err != nil:
		logger.Warn().Err(err).Msg("failed to load checkpoint, starting fresh")
		return fresh
	case cp.InputHash != hash:
		logger.Info().Str("checkpoint_hash", cp.InputHash).Msg("input changed since checkpoint, starting fresh")
		return fresh
	}

	cp.Key = s.opts.CheckpointKey
	cp.Stats.Total = total
	cp.Stats.SkippedFromCache = len(cp.Processed)
	logger.Info().Int("processed", len(cp.Processed)).
		Time("saved_at", cp.UpdatedAt).
		Msg("resuming from checkpoint")
	return cp
}

func (s *Service) saveCheckpoint(ctx context.Context, cp storage.Checkpoint, logger zerolog.Logger) {
	cp.Processed = append([]string(nil), cp.Processed...)
	cp.UpdatedAt = s.now()
	if err := s.deps.Checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		metrics.CheckpointSaves.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("failed to save checkpoint")
		return
	}
	metrics.CheckpointSaves.WithLabelValues("ok").Inc()
	logger.Debug().Int("processed", len(cp.Processed)).Msg("checkpoint saved")
}

func (s *Service) finish(ctx context.Context, res Result, started time.Time, runErr error, logger zerolog.Logger) {
	status := "partial"
	switch {
	case runErr != nil:
		status = "interrupted"
	case res.Complete:
		status = "complete"
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()

	logger.Info().Str("status", status).
		Int("total", res.Stats.Total).
		Int("processed", res.Stats.Processed).
		Int("posts_found", res.Stats.PostsFound).
		Int("handles_identified", res.Stats.HandlesFound).
		Int("errors", res.Stats.Errors).
		Int("skipped_from_cache", res.Stats.SkippedFromCache).
		Int("remaining", res.Remaining).
		Str("hit_rate_pct", res.Stats.HitRate().StringFixed(1)).
		Msg("run summary")

	if s.deps.Notifier == nil {
		return
	}
	summary := alerting.RunSummary{
		RunID:     res.RunID,
		Started:   started,
		Finished:  s.now(),
		Stats:     res.Stats,
		Remaining: res.Remaining,
		Complete:  res.Complete,
		Err:       runErr,
	}
	if err := s.deps.Notifier.Notify(ctx, summary); err != nil {
		logger.Error().Err(err).Msg("failed to send run summary")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return unlock, nil
}
