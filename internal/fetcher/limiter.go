package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a process-wide request rate with an optional minimum
// delay between requests to the same host.
type Limiter struct {
	global *rate.Limiter
	delay  time.Duration

	mu   sync.Mutex
	next map[string]time.Time
}

// NewLimiter creates a limiter. A non-positive requestsPerSecond disables the
// global ceiling and a non-positive delay disables per-host spacing.
func NewLimiter(requestsPerSecond float64, perHostDelay time.Duration) *Limiter {
	l := &Limiter{delay: perHostDelay}
	if requestsPerSecond > 0 {
		l.global = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if perHostDelay > 0 {
		l.next = make(map[string]time.Time)
	}
	return l
}

// Wait blocks until both constraints allow a request to host.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	if l.delay > 0 && host != "" {
		if err := l.waitHost(ctx, strings.ToLower(host)); err != nil {
			return err
		}
	}
	if l.global != nil {
		return l.global.Wait(ctx)
	}
	return nil
}

// waitHost reserves the next slot for host before sleeping so concurrent
// callers queue behind each other.
func (l *Limiter) waitHost(ctx context.Context, host string) error {
	now := time.Now()
	l.mu.Lock()
	slot := now
	if next, ok := l.next[host]; ok && next.After(now) {
		slot = next
	}
	l.next[host] = slot.Add(l.delay)
	l.mu.Unlock()

	if sleep := slot.Sub(now); sleep > 0 {
		return sleepCtx(ctx, sleep)
	}
	return nil
}
