// Package search composes the existence and ownership agents into a per-wallet
// verdict and drives batches of wallets under a concurrency cap.
package search

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"wallet-x-search/internal/agent"
	"wallet-x-search/internal/metrics"
	"wallet-x-search/internal/model"
	"wallet-x-search/internal/ratelimit"
)

const defaultConcurrency = 5

// ExistenceChecker is the first pipeline stage.
type ExistenceChecker interface {
	Check(ctx context.Context, wallet string) agent.ExistenceResult
}

// OwnershipAnalyzer is the second pipeline stage.
type OwnershipAnalyzer interface {
	Analyze(ctx context.Context, wallet string) agent.OwnershipResult
}

// ResultFunc receives every verdict exactly once. It may block; the wallet is
// not considered finished until it returns.
type ResultFunc func(ctx context.Context, v model.Verdict) error

// ProgressFunc is called after each sub-batch with counts relative to the
// current call.
type ProgressFunc func(processed, total int)

// Options tune the batch driver.
type Options struct {
	Concurrency int
	BatchDelay  time.Duration
	// Gate optionally shares one concurrency cap between orchestrators.
	Gate *semaphore.Weighted
}

// Orchestrator runs wallet searches.
type Orchestrator struct {
	existence ExistenceChecker
	ownership OwnershipAnalyzer
	opts      Options
	gate      *semaphore.Weighted
	logger    zerolog.Logger
	sleepFn   func(ctx context.Context, d time.Duration) error
}

// New constructs an Orchestrator.
func New(existence ExistenceChecker, ownership OwnershipAnalyzer, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	gate := opts.Gate
	if gate == nil {
		gate = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return &Orchestrator{
		existence: existence,
		ownership: ownership,
		opts:      opts,
		gate:      gate,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		sleepFn:   ratelimit.Sleep,
	}
}

// SearchWallet runs the two-stage pipeline for one wallet. The ownership stage
// only runs when a post exists.
func (o *Orchestrator) SearchWallet(ctx context.Context, wallet string) model.Verdict {
	o.logger.Info().Str("wallet", short(wallet)).Msg("searching wallet")

	exists := o.existence.Check(ctx, wallet)
	if !exists.PostExists {
		errMsg := ""
		if exists.Err != nil {
			errMsg = exists.Err.Error()
		}
		o.logger.Info().Str("wallet", short(wallet)).Msg("no posts found")
		return model.NoPostVerdict(wallet, exists.RawText, errMsg)
	}

	o.logger.Info().Str("wallet", short(wallet)).Msg("post found, analyzing ownership")
	owner := o.ownership.Analyze(ctx, wallet)
	if owner.Handle != "" {
		o.logger.Info().Str("wallet", short(wallet)).
			Str("handle", owner.Handle).
			Stringer("confidence", owner.Confidence).
			Msg("analysis complete")
		return model.AttributedVerdict(wallet, owner.Handle, owner.Confidence, owner.RawText)
	}

	confidence := model.ConfidenceLow
	if owner.HasConfidence {
		confidence = owner.Confidence
	}
	errMsg := ""
	if owner.Err != nil {
		errMsg = owner.Err.Error()
	}
	o.logger.Warn().Str("wallet", short(wallet)).Msg("post exists but ownership analysis failed")
	return model.UnattributedVerdict(wallet, confidence, owner.RawText, errMsg)
}

// SearchWallets processes wallets in sub-batches of twice the concurrency cap.
// Each wallet yields exactly one verdict and one onResult call. The returned
// error is only non-nil when ctx is cancelled, in which case the verdicts
// completed so far are returned.
func (o *Orchestrator) SearchWallets(ctx context.Context, wallets []string, onResult ResultFunc, onProgress ProgressFunc) ([]model.Verdict, error) {
	if len(wallets) == 0 {
		return []model.Verdict{}, nil
	}

	batchSize := o.opts.Concurrency * 2
	totalBatches := (len(wallets) + batchSize - 1) / batchSize
	started := time.Now()

	o.logger.Info().Int("wallets", len(wallets)).
		Int("max_concurrent", o.opts.Concurrency).
		Msg("starting wallet search")

	results := make([]model.Verdict, 0, len(wallets))
	for start := 0; start < len(wallets); start += batchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + batchSize
		if end > len(wallets) {
			end = len(wallets)
		}
		o.logger.Info().Int("batch", start/batchSize+1).
			Int("batches", totalBatches).
			Int("size", end-start).
			Msg("processing batch")

		batch := o.runBatch(ctx, wallets[start:end], onResult)
		results = append(results, batch...)
		metrics.BatchesCompleted.Inc()

		if onProgress != nil {
			onProgress(end, len(wallets))
		}

		if end < len(wallets) && o.opts.BatchDelay > 0 {
			if err := o.sleepFn(ctx, o.opts.BatchDelay); err != nil {
				return results, err
			}
		}
	}

	elapsed := time.Since(started)
	o.logger.Info().Int("wallets", len(results)).
		Dur("elapsed", elapsed).
		Dur("per_wallet", elapsed/time.Duration(len(results))).
		Msg("wallet search completed")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, batch []string, onResult ResultFunc) []model.Verdict {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]model.Verdict, 0, len(batch))
	)

	for _, wallet := range batch {
		wg.Add(1)
		go func(wallet string) {
			defer wg.Done()

			if err := o.gate.Acquire(ctx, 1); err != nil {
				return
			}
			defer o.gate.Release(1)

			v := o.safeSearch(ctx, wallet)
			if ctx.Err() != nil {
				// Cancelled mid-wallet: leave it unprocessed so a resumed run retries it.
				return
			}
			recordVerdict(v)
			o.deliver(ctx, v, onResult)

			mu.Lock()
			results = append(results, v)
			mu.Unlock()
		}(wallet)
	}

	wg.Wait()
	return results
}

// safeSearch converts a panic in the pipeline into a degraded verdict.
func (o *Orchestrator) safeSearch(ctx context.Context, wallet string) (v model.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("wallet", short(wallet)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("error processing wallet")
			v = model.FailedVerdict(wallet, fmt.Sprint(r))
		}
	}()
	return o.SearchWallet(ctx, wallet)
}

func (o *Orchestrator) deliver(ctx context.Context, v model.Verdict, onResult ResultFunc) {
	if onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("wallet", short(v.Wallet)).Interface("panic", r).Msg("result callback panicked")
		}
	}()
	if err := onResult(ctx, v); err != nil {
		o.logger.Error().Err(err).Str("wallet", short(v.Wallet)).Msg("result callback failed")
	}
}

func recordVerdict(v model.Verdict) {
	degraded := "false"
	if v.Degraded() {
		degraded = "true"
	}
	metrics.VerdictsTotal.WithLabelValues(v.Confidence.String(), degraded).Inc()
}

func short(wallet string) string {
	if len(wallet) <= 20 {
		return wallet
	}
	return wallet[:20] + "..."
}
