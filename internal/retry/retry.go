// Package retry implements the shared retry executor. Transient failures get
// exponential backoff; malformed structured output gets its own corrective
// re-prompt budget so schema hiccups never burn the transient budget.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
)

// Policy configures one retry budget.
type Policy struct {
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay    time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	ExponentialBase float64       `mapstructure:"exponential_base" yaml:"exponential_base"`
	JitterFactor    float64       `mapstructure:"jitter_factor" yaml:"jitter_factor"`
}

// DefaultPolicy is the transient-failure budget: up to 3 retries after the
// first attempt, delays 1s, 2s, 4s capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// DefaultDecodePolicy is the malformed-output budget: two corrective
// re-prompts with short delays.
func DefaultDecodePolicy() Policy {
	return Policy{
		MaxRetries:      2,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
	}
}

// Delay returns the backoff before retry attempt (0-based):
// min(MaxDelay, InitialDelay * ExponentialBase^attempt), plus jitter when
// JitterFactor is nonzero.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.ExponentialBase
	if base <= 0 {
		base = 2.0
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(base, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * p.JitterFactor * float64(delay)
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = p.InitialDelay
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return delay
}

// SleepFunc waits for d or until ctx is done. Tests substitute a recording
// implementation.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor applies the two retry budgets and records the attempts it makes.
type Executor struct {
	policy       Policy
	decodePolicy Policy
	collector    *metrics.Collector
	logger       logging.Logger
	sleep        SleepFunc
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleep substitutes the backoff sleeper. Used by tests to capture the
// delay sequence without waiting.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// NewExecutor creates an executor. collector may be nil when no run
// instrumentation is wanted.
func NewExecutor(policy, decodePolicy Policy, collector *metrics.Collector, logger logging.Logger, opts ...Option) *Executor {
	e := &Executor{
		policy:       policy,
		decodePolicy: decodePolicy,
		collector:    collector,
		logger:       logging.OrNop(logger),
		sleep:        sleepWithContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the transient-failure budget.
func (e *Executor) Policy() Policy { return e.policy }

func (e *Executor) recordRetry(kind Kind) {
	if e.collector == nil {
		return
	}
	switch kind {
	case KindLLM:
		e.collector.RecordLLMRetry()
	case KindAPI:
		e.collector.RecordAPIRetry()
	}
}

// Kind tags which counter family an operation belongs to.
type Kind int

const (
	// KindLLM is a language-model call.
	KindLLM Kind = iota
	// KindAPI is any other upstream call (search, crawl).
	KindAPI
)

// Do runs fn under the transient-failure budget. Permanent and
// malformed-output errors return immediately. After the budget is exhausted
// the last error is wrapped in *errors.RetryExhaustedError with the total
// attempt count.
func Do[T any](ctx context.Context, e *Executor, kind Kind, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", operation, err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info("%s succeeded after %d attempts", operation, attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !errors.IsTransient(err) {
			e.logger.Debug("%s failed non-transiently: %v", operation, err)
			return zero, err
		}

		if attempt == e.policy.MaxRetries {
			break
		}

		delay := e.policy.Delay(attempt)
		e.logger.Warn("%s attempt %d/%d failed (%v), retrying in %v",
			operation, attempt+1, e.policy.MaxRetries+1, err, delay)
		e.recordRetry(kind)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", operation, err)
		}
	}

	if e.collector != nil {
		e.collector.Error(fmt.Sprintf("%s: retries exhausted: %v", operation, lastErr))
	}
	return zero, &errors.RetryExhaustedError{
		Operation: operation,
		Attempts:  e.policy.MaxRetries + 1,
		Err:       lastErr,
	}
}

// DoDecoded runs fn under both budgets. fn receives the validation failure
// from the previous attempt (empty on the first) so the caller can append a
// corrective instruction to the prompt. Transient failures inside fn follow
// the transient budget via nested Do; malformed-output errors consume the
// decode budget instead.
func DoDecoded[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context, corrective string) (T, error)) (T, error) {
	var zero T
	var lastErr error
	corrective := ""

	for attempt := 0; attempt <= e.decodePolicy.MaxRetries; attempt++ {
		result, err := Do(ctx, e, KindLLM, operation, func(ctx context.Context) (T, error) {
			return fn(ctx, corrective)
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errors.IsMalformed(err) {
			return zero, err
		}

		if attempt == e.decodePolicy.MaxRetries {
			break
		}

		corrective = err.Error()
		delay := e.decodePolicy.Delay(attempt)
		e.logger.Warn("%s produced malformed output (attempt %d/%d), re-prompting in %v",
			operation, attempt+1, e.decodePolicy.MaxRetries+1, delay)
		if e.collector != nil {
			e.collector.RecordLLMReparse()
		}
		if err := e.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w", operation, err)
		}
	}

	if e.collector != nil {
		e.collector.Error(fmt.Sprintf("%s: decode retries exhausted: %v", operation, lastErr))
	}
	return zero, &errors.RetryExhaustedError{
		Operation: operation,
		Attempts:  e.decodePolicy.MaxRetries + 1,
		Err:       lastErr,
	}
}
