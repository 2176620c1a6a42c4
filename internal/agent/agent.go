// Package agent runs the existence and ownership queries against the search
// service, with rate limiting, retries and quota backoff.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wallet-x-search/internal/metrics"
)

const defaultMaxRetries = 3

// SearchClient is the external conversational search service.
type SearchClient interface {
	Search(ctx context.Context, query string) (string, error)
}

// Gate is the rate limiter consulted around every call.
type Gate interface {
	Acquire(ctx context.Context) error
	ReportRateLimited(attempt int) time.Duration
	ResetRejections()
	Sleep(ctx context.Context, d time.Duration) error
}

// Outcome classifies one attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeQuota
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeQuota:
		return "rate_limited"
	default:
		return "error"
	}
}

// Options tune both agents.
type Options struct {
	MaxRetries int
	// RetryStep is the linear backoff unit for non-quota failures.
	RetryStep time.Duration
}

// statusCoder is implemented by transport errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

var quotaTokens = []string{"rate limit", "429", "too many requests", "resource_exhausted"}

// IsQuotaRejection reports whether err signals that the caller exceeded the
// service's request quota. HTTP clients report a 429 through StatusCode; the
// gRPC ResourceExhausted check covers SearchClient implementations backed by a
// gRPC transport.
func IsQuotaRejection(err error) bool {
	if err == nil {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, token := range quotaTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Classify maps an attempt error to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsQuotaRejection(err):
		return OutcomeQuota
	default:
		return OutcomeFailure
	}
}

// response is the terminal value of the retry loop.
type response struct {
	Text     string
	Err      error
	Attempts int
}

type caller struct {
	name   string
	client SearchClient
	gate   Gate
	opts   Options
	logger zerolog.Logger
}

func newCaller(name string, client SearchClient, gate Gate, opts Options, logger zerolog.Logger) caller {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = 2 * time.Second
	}
	return caller{
		name:   name,
		client: client,
		gate:   gate,
		opts:   opts,
		logger: logger.With().Str("component", name+"_agent").Logger(),
	}
}

// call runs query until it succeeds or retries are exhausted. It never
// returns a Go error; exhaustion is reported in response.Err.
func (c caller) call(ctx context.Context, wallet, query string) response {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if err := c.gate.Acquire(ctx); err != nil {
			return response{Err: err, Attempts: attempt}
		}

		started := time.Now()
		text, err := c.client.Search(ctx, query)
		metrics.SearchCallLatency.WithLabelValues(c.name).Observe(time.Since(started).Seconds())

		outcome := Classify(err)
		metrics.SearchCallsTotal.WithLabelValues(c.name, outcome.String()).Inc()

		switch outcome {
		case OutcomeOK:
			c.gate.ResetRejections()
			return response{Text: text, Attempts: attempt}
		case OutcomeQuota:
			lastErr = err
			metrics.RateLimitRejections.Inc()
			delay := c.gate.ReportRateLimited(attempt)
			if attempt == c.opts.MaxRetries {
				break
			}
			if err := c.gate.Sleep(ctx, delay); err != nil {
				return response{Err: err, Attempts: attempt}
			}
		case OutcomeFailure:
			lastErr = err
			c.logger.Error().Err(err).Str("wallet", short(wallet)).
				Int("attempt", attempt).Int("max_retries", c.opts.MaxRetries).
				Msg("search attempt failed")
			if attempt == c.opts.MaxRetries {
				break
			}
			wait := time.Duration(attempt) * c.opts.RetryStep
			c.logger.Info().Dur("wait", wait).Msg("waiting before retry")
			if err := c.gate.Sleep(ctx, wait); err != nil {
				return response{Err: err, Attempts: attempt}
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return response{Err: fmt.Errorf("retries exhausted: %w", lastErr), Attempts: c.opts.MaxRetries}
}

func short(wallet string) string {
	if len(wallet) <= 20 {
		return wallet
	}
	return wallet[:20] + "..."
}
