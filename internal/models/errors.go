package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies pipeline failures for retry decisions and job metrics.
type ErrorKind string

const (
	// ErrTransientNetwork covers timeouts, 5xx responses, and connection
	// resets. Retried with backoff.
	ErrTransientNetwork ErrorKind = "transient_network"
	// ErrPermanentHttp covers 4xx responses. Fatal per URL, not per job.
	ErrPermanentHttp ErrorKind = "permanent_http"
	// ErrPolicyBlocked covers robots disallow, blacklisted hosts and the
	// response body cap.
	// Counted and skipped, never retried.
	ErrPolicyBlocked ErrorKind = "policy_blocked"
	// ErrParseFailed covers malformed documents. The page is recorded with
	// parse-failed status and no bits are extracted.
	ErrParseFailed ErrorKind = "parse_failed"
	// ErrStoreUnavailable covers fatal storage I/O after retries.
	ErrStoreUnavailable ErrorKind = "store_unavailable"
	// ErrQuotaExhausted drops a search provider from the current dispatch.
	ErrQuotaExhausted ErrorKind = "quota_exhausted"
	// ErrCancelled covers cooperative cancellation. Not logged as an error.
	ErrCancelled ErrorKind = "cancelled"
	// ErrTimedOut covers job and operation deadlines. Jobs may retry on it.
	ErrTimedOut ErrorKind = "timed_out"
	// ErrBadInput covers malformed URLs, unknown rule types, and invalid
	// scores. Returned synchronously; nothing is persisted.
	ErrBadInput ErrorKind = "bad_input"
)

// ClassifiedError wraps an error with its pipeline classification.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// WrapKind attaches a classification to err. A nil err yields a bare
// classified error so callers can signal a kind without a cause.
func WrapKind(kind ErrorKind, err error) error {
	return &ClassifiedError{Kind: kind, Err: err}
}

// Kindf builds a classified error from a format string.
func Kindf(kind ErrorKind, format string, args ...interface{}) error {
	return &ClassifiedError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from an error chain. Unclassified
// context and net errors map onto the taxonomy; anything else reports
// false via the ok flag.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}

	if errors.Is(err, context.Canceled) {
		return ErrCancelled, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimedOut, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimedOut, true
		}
		return ErrTransientNetwork, true
	}

	return "", false
}

// IsRetryableKind reports whether a job-level failure of this kind is
// eligible for a scheduler retry.
func IsRetryableKind(kind ErrorKind) bool {
	return kind == ErrTimedOut || kind == ErrTransientNetwork
}
