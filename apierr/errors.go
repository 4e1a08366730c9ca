// Package apierr classifies errors raised while talking to the deployment
// API and turns final errors into operator-facing messages.
//
// Classification uses typed errors first (StatusError, net.Error, syscall
// errnos) and falls back to message patterns, so callers can use
// errors.Is/errors.As rather than string matching.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrAuth indicates the token is missing, invalid or expired (401).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates valid credentials without permission (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates the target resource does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrThrottled indicates rate limiting (429).
	ErrThrottled = errors.New("rate limited")

	// ErrTimeout indicates a request or connection timed out (408, i/o timeout).
	ErrTimeout = errors.New("operation timed out")

	// ErrNetwork indicates a transport failure (connection refused/reset, DNS).
	ErrNetwork = errors.New("network error")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrRejected indicates any other 4xx response.
	ErrRejected = errors.New("request rejected")

	// ErrCanceled indicates the caller's context was canceled.
	ErrCanceled = errors.New("canceled")

	// ErrUnknown is the kind of errors that match no other class.
	ErrUnknown = errors.New("unclassified error")
)

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	// Body is the (possibly truncated) response body.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Is matches the sentinel kind of the status code.
func (e *StatusError) Is(target error) bool {
	return errors.Is(statusKind(e.Code), target)
}

// MaxBodyBytes bounds how much of an error response body is kept.
const MaxBodyBytes = 4 << 10

// FromResponse builds a StatusError from a non-2xx response, reading at most
// MaxBodyBytes of its body. The caller still owns closing resp.Body.
func FromResponse(resp *http.Response) *StatusError {
	se := &StatusError{Code: resp.StatusCode}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		if resp.Request.URL != nil {
			se.URL = resp.Request.URL.Redacted()
		}
	}
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
		se.Body = string(b)
	}
	return se
}

func statusKind(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrAuth
	case code == http.StatusForbidden:
		return ErrAccessDenied
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case code == http.StatusRequestTimeout:
		return ErrTimeout
	case code >= 500:
		return ErrServer
	case code >= 400:
		return ErrRejected
	default:
		return ErrUnknown
	}
}

// Classify determines the sentinel kind of err. Returns nil for nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		return statusKind(se.Code)
	}
	if errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNetwork
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(errStr, "connection refused", "connection reset", "broken pipe",
		"no such host", "no route to host", "network unreachable", "unexpected eof", "dial tcp"):
		return ErrNetwork
	default:
		return ErrUnknown
	}
}

// IsRetryable reports whether a request that failed with err is worth
// repeating: transport failures, timeouts and HTTP 408/429/5xx. Other 4xx
// (including 401/403) and context cancellation are permanent.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ErrNetwork, ErrTimeout, ErrThrottled, ErrServer:
		return true
	default:
		return false
	}
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	kind := Classify(err)
	return kind == ErrAuth || kind == ErrAccessDenied
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
