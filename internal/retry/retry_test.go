package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deepresearch/internal/errors"
	"deepresearch/internal/metrics"
)

// recordingSleeper captures backoff delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testExecutor(policy, decodePolicy Policy, collector *metrics.Collector) (*Executor, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	exec := NewExecutor(policy, decodePolicy, collector, nil, WithSleep(sleeper.sleep))
	return exec, sleeper
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	exec, sleeper := testExecutor(DefaultPolicy(), DefaultDecodePolicy(), nil)

	calls := 0
	result, err := Do(context.Background(), exec, KindAPI, "op", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 1, calls)
	require.Empty(t, sleeper.delays)
}

func TestDoBackoffSequence(t *testing.T) {
	policy := Policy{
		MaxRetries:      5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
	exec, sleeper := testExecutor(policy, DefaultDecodePolicy(), nil)

	calls := 0
	_, err := Do(context.Background(), exec, KindAPI, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.NewTransientError(fmt.Errorf("boom"), "")
	})
	require.Error(t, err)
	require.Equal(t, 6, calls)
	require.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, sleeper.delays)
}

func TestDoBackoffCappedAtMaxDelay(t *testing.T) {
	policy := Policy{
		MaxRetries:      7,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
	exec, sleeper := testExecutor(policy, DefaultDecodePolicy(), nil)

	_, err := Do(context.Background(), exec, KindAPI, "op", func(ctx context.Context) (int, error) {
		return 0, errors.NewTransientError(fmt.Errorf("boom"), "")
	})
	require.Error(t, err)
	require.Len(t, sleeper.delays, 7)
	require.Equal(t, 16*time.Second, sleeper.delays[4])
	require.Equal(t, 30*time.Second, sleeper.delays[5])
	require.Equal(t, 30*time.Second, sleeper.delays[6])
}

func TestDoWrapsExhaustionWithAttemptCount(t *testing.T) {
	policy := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	exec, _ := testExecutor(policy, DefaultDecodePolicy(), nil)

	_, err := Do(context.Background(), exec, KindAPI, "fetch", func(ctx context.Context) (int, error) {
		return 0, errors.NewTransientError(fmt.Errorf("boom"), "")
	})
	var exhausted *errors.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "fetch", exhausted.Operation)
	require.Equal(t, 3, exhausted.Attempts)
}

func TestDoPermanentErrorReturnsImmediately(t *testing.T) {
	exec, sleeper := testExecutor(DefaultPolicy(), DefaultDecodePolicy(), nil)

	calls := 0
	permanent := errors.NewPermanentError(fmt.Errorf("unauthorized"), "bad key")
	_, err := Do(context.Background(), exec, KindAPI, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
	require.Empty(t, sleeper.delays)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	exec, _ := testExecutor(DefaultPolicy(), DefaultDecodePolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, exec, KindAPI, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestDoRecordsRetryMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	policy := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	exec, _ := testExecutor(policy, DefaultDecodePolicy(), collector)

	_, err := Do(context.Background(), exec, KindAPI, "op", func(ctx context.Context) (int, error) {
		return 0, errors.NewTransientError(fmt.Errorf("boom"), "")
	})
	require.Error(t, err)

	snap := collector.Drain()
	require.EqualValues(t, 2, snap.API.Retries)
	require.Len(t, snap.Errors, 1)
}

func TestDoDecodedCorrectiveFlow(t *testing.T) {
	exec, sleeper := testExecutor(DefaultPolicy(), DefaultDecodePolicy(), nil)

	var correctives []string
	result, err := DoDecoded(context.Background(), exec, "parse", func(ctx context.Context, corrective string) (string, error) {
		correctives = append(correctives, corrective)
		if len(correctives) < 3 {
			return "", errors.NewMalformedOutputError("garbage", "expected JSON")
		}
		return "parsed", nil
	})
	require.NoError(t, err)
	require.Equal(t, "parsed", result)
	require.Len(t, correctives, 3)
	require.Empty(t, correctives[0])
	require.Contains(t, correctives[1], "expected JSON")
	// Two decode backoffs, no transient backoffs.
	require.Len(t, sleeper.delays, 2)
}

func TestDoDecodedExhaustsSeparateBudget(t *testing.T) {
	collector := metrics.NewCollector()
	decodePolicy := Policy{MaxRetries: 2, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	exec, _ := testExecutor(DefaultPolicy(), decodePolicy, collector)

	calls := 0
	_, err := DoDecoded(context.Background(), exec, "parse", func(ctx context.Context, corrective string) (int, error) {
		calls++
		return 0, errors.NewMalformedOutputError("garbage", "expected JSON")
	})
	var exhausted *errors.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, calls)

	snap := collector.Drain()
	require.EqualValues(t, 2, snap.LLM.Reparses)
	require.EqualValues(t, 0, snap.LLM.Retries)
}

func TestDoDecodedTransientErrorsUseTransientBudget(t *testing.T) {
	policy := Policy{MaxRetries: 1, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	exec, _ := testExecutor(policy, DefaultDecodePolicy(), nil)

	calls := 0
	result, err := DoDecoded(context.Background(), exec, "parse", func(ctx context.Context, corrective string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.NewTransientError(fmt.Errorf("timeout"), "")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 2, calls)
}

func TestPolicyDelayJitterStaysBounded(t *testing.T) {
	policy := Policy{
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		JitterFactor:    0.25,
	}
	for attempt := 0; attempt < 10; attempt++ {
		d := policy.Delay(attempt)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 30*time.Second)
	}
}
