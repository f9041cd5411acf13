package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/clock"
)

// Limiter enforces a minimum spacing between calls that share a service key.
// Spacing is measured from the completion of the previous call, so it is not
// a token bucket: distinct keys never wait on each other.
type Limiter struct {
	mu           sync.Mutex
	clock        clock.Clock
	logger       *slog.Logger
	defaultDelay time.Duration
	delays       map[string]time.Duration
	last         map[string]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithDefaultDelay sets the delay used for keys without an explicit delay.
func WithDefaultDelay(d time.Duration) Option {
	return func(l *Limiter) { l.defaultDelay = d }
}

// WithDelay sets the delay for one service key.
func WithDelay(key string, d time.Duration) Option {
	return func(l *Limiter) { l.delays[key] = d }
}

// WithDelays sets delays for several keys at once.
func WithDelays(delays map[string]time.Duration) Option {
	return func(l *Limiter) {
		for k, d := range delays {
			l.delays[k] = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter. Without options every key is unthrottled.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		clock:  clock.Real{},
		logger: slog.Default(),
		delays: make(map[string]time.Duration),
		last:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Delay returns the configured spacing for key.
func (l *Limiter) Delay(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delayLocked(key)
}

func (l *Limiter) delayLocked(key string) time.Duration {
	if d, ok := l.delays[key]; ok {
		return d
	}
	return l.defaultDelay
}

// Await blocks until the delay for key has elapsed since the last completed
// call with that key. The only error is ctx's.
func (l *Limiter) Await(ctx context.Context, key string) error {
	l.mu.Lock()
	delay := l.delayLocked(key)
	last, seen := l.last[key]
	l.mu.Unlock()

	if delay <= 0 || !seen {
		return ctx.Err()
	}
	wait := delay - l.clock.Now().Sub(last)
	if wait <= 0 {
		return ctx.Err()
	}
	l.logger.Debug("ratelimit.wait", "key", key, "wait_ms", wait.Milliseconds())
	return l.clock.Sleep(ctx, wait)
}

// Done records that a call with key just completed.
func (l *Limiter) Done(key string) {
	now := l.clock.Now()
	l.mu.Lock()
	l.last[key] = now
	l.mu.Unlock()
}

// Do runs fn between Await and Done. Done is recorded even when fn fails,
// since a failed request still counts against the remote budget.
func (l *Limiter) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := l.Await(ctx, key); err != nil {
		return err
	}
	defer l.Done(key)
	return fn(ctx)
}
