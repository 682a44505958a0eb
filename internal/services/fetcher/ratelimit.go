package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/percipio/internal/common"
)

// RateLimiter enforces a minimum delay between requests to the same host.
// Waiting is cooperative: callers block on a timer and honor cancellation.
type RateLimiter struct {
	limiters     map[string]*hostLimiter
	mu           sync.RWMutex
	defaultDelay time.Duration
}

// hostLimiter tracks the last request time for a single host
type hostLimiter struct {
	lastRequest time.Time
	mu          sync.Mutex
	delay       time.Duration
}

// NewRateLimiter creates a rate limiter with the specified default per-host delay
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters:     make(map[string]*hostLimiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until the host's minimum delay has elapsed since its last
// request, then claims the slot. Returns the context error on cancellation.
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	host := common.HostKey(rawURL)
	if host == "" {
		return nil
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[host]
	if !exists {
		limiter = &hostLimiter{
			delay: rl.defaultDelay,
		}
		rl.limiters[host] = limiter
	}
	rl.mu.Unlock()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	nextAllowed := limiter.lastRequest.Add(limiter.delay)

	if now.Before(nextAllowed) {
		timer := time.NewTimer(nextAllowed.Sub(now))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	limiter.lastRequest = time.Now()
	return nil
}

// SetHostDelay sets a custom delay for a specific host, for example from a
// crawl-delay directive
func (rl *RateLimiter) SetHostDelay(host string, delay time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[host]
	if !exists {
		rl.limiters[host] = &hostLimiter{delay: delay}
		return
	}
	limiter.mu.Lock()
	limiter.delay = delay
	limiter.mu.Unlock()
}

// HostDelay returns the current delay for a host
func (rl *RateLimiter) HostDelay(host string) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	limiter, exists := rl.limiters[host]
	if !exists {
		return rl.defaultDelay
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return limiter.delay
}
