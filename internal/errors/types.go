package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// TransientError marks a failure worth retrying: network trouble, timeouts,
// rate limits, upstream 5xx responses.
type TransientError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // operator-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix (auth, bad
// request, missing model).
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// MalformedOutputError marks structured model output that failed schema
// validation. It is handled by the corrective-reprompt retry budget, not the
// transient one.
type MalformedOutputError struct {
	Err    error
	Raw    string // offending model output, truncated for logs
	Reason string // what validation expected
}

func (e *MalformedOutputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed model output: %s", e.Reason)
	}
	return fmt.Sprintf("malformed model output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError wraps the last error after a retry budget ran out,
// tagged with the attempt count.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// ObjectiveFailure records one sub-agent's terminal failure for aggregation.
type ObjectiveFailure struct {
	Index     int
	Objective string
	Err       error
}

// TotalFailureError is returned when every research objective failed, or when
// objective identification exhausted all fallback paths. It is the only error
// class that escalates out of a run.
type TotalFailureError struct {
	Failures []ObjectiveFailure
	At       time.Time
}

func (e *TotalFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "research run failed: all %d objectives failed", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  [%d] %s: %v", f.Index+1, f.Objective, f.Err)
	}
	return b.String()
}

// NewTransientError creates a transient error with an operator-friendly message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError creates a permanent error with an operator-friendly message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// NewMalformedOutputError creates a malformed-output error, keeping a bounded
// slice of the raw output for diagnostics.
func NewMalformedOutputError(raw, reason string) *MalformedOutputError {
	const keep = 400
	if len(raw) > keep {
		raw = raw[:keep] + "..."
	}
	return &MalformedOutputError{Raw: raw, Reason: reason}
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// An exhausted budget is terminal even when the last cause was
	// transient, so this check must run before the unwrapping ones below.
	var exhaustedErr *RetryExhaustedError
	if errors.As(err, &exhaustedErr) {
		return false
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}
	// Malformed output has its own retry class.
	var malformedErr *MalformedOutputError
	if errors.As(err, &malformedErr) {
		return false
	}

	if isNetworkError(err) || isSyscallError(err) {
		return true
	}

	if code := HTTPStatus(err); code > 0 {
		return isTransientHTTPStatus(code)
	}

	return false
}

// IsMalformed reports whether err is a structured-output validation failure.
func IsMalformed(err error) bool {
	var malformedErr *MalformedOutputError
	return errors.As(err, &malformedErr)
}

// IsTotalFailure reports whether err is a run-fatal aggregate failure.
func IsTotalFailure(err error) bool {
	var totalErr *TotalFailureError
	return errors.As(err, &totalErr)
}

// HTTPStatus extracts an HTTP status code from the taxonomy wrappers, or 0.
func HTTPStatus(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}
	return 0
}

// FromHTTPStatus classifies an upstream HTTP failure into the taxonomy.
func FromHTTPStatus(statusCode int, service, body string) error {
	err := fmt.Errorf("%s returned HTTP %d: %s", service, statusCode, firstLine(body))
	if isTransientHTTPStatus(statusCode) {
		return &TransientError{Err: err, StatusCode: statusCode}
	}
	return &PermanentError{Err: err, StatusCode: statusCode}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const keep = 200
	if len(s) > keep {
		s = s[:keep] + "..."
	}
	return s
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"deadline exceeded",
		"rate limit",
		"temporary failure",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
