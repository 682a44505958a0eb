package fetcher

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/models"
)

// RetryPolicy defines fetch retry behavior with exponential backoff.
// Network errors and 5xx responses retry; 4xx is fatal for the URL.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewRetryPolicy creates a retry policy. Zero or negative attempts fall back
// to a single attempt.
func NewRetryPolicy(maxAttempts int, initialBackoff time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	return &RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     30 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (0-based), doubling
// from the initial backoff.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff << uint(attempt)
	if backoff > p.MaxBackoff || backoff <= 0 {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Retryable reports whether the error is worth another attempt. Classified
// errors follow the taxonomy; unclassified connection errors count as
// transient.
func (p *RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if kind, ok := models.KindOf(err); ok {
		return models.IsRetryableKind(kind)
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// fn returns the HTTP status code it observed, for logging only.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func() (int, error)) (int, error) {
	var lastErr error
	var statusCode int

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.Backoff(attempt - 1)
			logger.Debug().
				Int("attempt", attempt+1).
				Int("status_code", statusCode).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Retrying fetch after backoff")

			select {
			case <-ctx.Done():
				kind, _ := models.KindOf(ctx.Err())
				return statusCode, models.WrapKind(kind, ctx.Err())
			case <-time.After(backoff):
			}
		}

		statusCode, lastErr = fn()
		if lastErr == nil {
			return statusCode, nil
		}
		if !p.Retryable(lastErr) {
			return statusCode, lastErr
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Int("status_code", statusCode).
		Err(lastErr).
		Msg("All fetch attempts exhausted")

	return statusCode, lastErr
}
