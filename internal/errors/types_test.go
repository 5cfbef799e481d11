package errors

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransientClassification(t *testing.T) {
	require.True(t, IsTransient(NewTransientError(fmt.Errorf("boom"), "")))
	require.True(t, IsTransient(fmt.Errorf("wrapped: %w", NewTransientError(fmt.Errorf("boom"), ""))))
	require.False(t, IsTransient(NewPermanentError(fmt.Errorf("boom"), "")))
	require.False(t, IsTransient(NewMalformedOutputError("raw", "bad json")))
	require.False(t, IsTransient(nil))
}

func TestHTTPStatusClassification(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		err := FromHTTPStatus(code, "llm", "upstream sad")
		require.True(t, IsTransient(err), "status %d should be transient", code)
		require.Equal(t, code, HTTPStatus(err))
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		err := FromHTTPStatus(code, "llm", "client error")
		require.False(t, IsTransient(err), "status %d should be permanent", code)
		require.Equal(t, code, HTTPStatus(err))
	}
}

func TestNetworkErrorsAreTransient(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}
	require.True(t, IsTransient(opErr))
	require.True(t, IsTransient(fmt.Errorf("request failed: connection reset by peer")))
	require.True(t, IsTransient(fmt.Errorf("rate limit exceeded")))
	require.False(t, IsTransient(fmt.Errorf("invalid api key")))
}

func TestMalformedOutputTruncatesRaw(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	err := NewMalformedOutputError(string(long), "expected JSON")
	require.True(t, IsMalformed(err))
	require.LessOrEqual(t, len(err.Raw), 403)
	require.Contains(t, err.Error(), "expected JSON")
}

func TestRetryExhaustedWrapsLastError(t *testing.T) {
	inner := NewTransientError(fmt.Errorf("boom"), "")
	err := &RetryExhaustedError{Operation: "search", Attempts: 4, Err: inner}
	require.Contains(t, err.Error(), "search")
	require.Contains(t, err.Error(), "4 attempts")
	require.ErrorIs(t, err, inner)
	// Exhaustion is terminal even though the cause was transient.
	require.False(t, IsTransient(err))
}

func TestTotalFailureListsEveryObjective(t *testing.T) {
	err := &TotalFailureError{
		Failures: []ObjectiveFailure{
			{Index: 0, Objective: "clinical impact", Err: fmt.Errorf("no findings")},
			{Index: 1, Objective: "cost impact", Err: fmt.Errorf("search down")},
		},
	}
	require.True(t, IsTotalFailure(err))
	require.Contains(t, err.Error(), "all 2 objectives failed")
	require.Contains(t, err.Error(), "clinical impact")
	require.Contains(t, err.Error(), "search down")
}
