package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/clock"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
)

// Policy retries transient failures with exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	// Classify decides whether an error is worth another attempt.
	// Defaults to common.IsTransient.
	Classify func(error) bool
	Clock    clock.Clock
	Logger   *slog.Logger
}

// New returns a Policy with the default classifier and wall clock.
func New(maxAttempts int, baseBackoff time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseBackoff: baseBackoff}
}

// Backoff returns the wait after the given 1-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseBackoff <= 0 {
		return 0
	}
	return p.BaseBackoff << (attempt - 1)
}

// Execute calls fn until it succeeds, fails non-transiently, or MaxAttempts
// is reached. It returns the number of calls made. Exhaustion yields a
// *common.RetryExhaustedError wrapping the last error.
func (p Policy) Execute(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = common.IsTransient
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("retry.recovered", "op", op, "attempt", attempt)
			}
			return attempt, nil
		}
		lastErr = err
		if !classify(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			break
		}
		wait := p.Backoff(attempt)
		logger.Warn("retry.backoff",
			"op", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if err := clk.Sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}

	logger.Warn("retry.exhausted", "op", op, "attempts", maxAttempts, "error", lastErr)
	return maxAttempts, &common.RetryExhaustedError{Op: op, Attempts: maxAttempts, Last: lastErr}
}
