// Package retry bounds and paces repeated adapter calls.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// ErrAbandoned is returned when a call keeps running after its deadline.
var ErrAbandoned = errors.New("call abandoned after ignoring cancellation")

// Config controls attempts, backoff and per-call deadlines.
type Config struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	AbandonGrace time.Duration `mapstructure:"abandon_grace"`
}

// Defaults used when a Config field is zero.
const (
	DefaultMaxAttempts  = 3
	DefaultBaseDelay    = 250 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultCallTimeout  = 60 * time.Second
	DefaultAbandonGrace = 2 * time.Second
)

// Policy implements exponential backoff with jitter.
type Policy struct {
	cfg Config
}

// New builds a policy, filling zero fields with defaults.
func New(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.AbandonGrace <= 0 {
		cfg.AbandonGrace = DefaultAbandonGrace
	}
	return &Policy{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Retryable reports whether err is worth another attempt. Fatal adapter
// errors, cancellation and abandonment are final; transient errors and
// timeouts are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ingest.ErrFatal),
		errors.Is(err, ErrAbandoned),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ingest.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// ShouldRetry decides whether attempt (1-based) may be followed by another.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	return attempt < p.cfg.MaxAttempts && Retryable(err)
}

// Backoff returns the wait before the attempt following attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
// Each call gets its own CallTimeout. A call that has not returned
// AbandonGrace after its deadline is abandoned and not retried. Do returns
// the number of attempts made.
func (p *Policy) Do(ctx context.Context, fn func(context.Context) error) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = p.call(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, errors.Join(err, ctx.Err())
		}
		if !p.ShouldRetry(err, attempt) {
			return attempt, err
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *Policy) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
	}

	grace := time.NewTimer(p.cfg.AbandonGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if callCtx.Err() != nil && !errors.Is(err, callCtx.Err()) {
			return fmt.Errorf("%w: %w", callCtx.Err(), err)
		}
		return err
	case <-grace.C:
		return fmt.Errorf("%w: %w", ErrAbandoned, callCtx.Err())
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
