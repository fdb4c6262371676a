// Package ratelimit throttles outbound calls per logical endpoint with a
// short sliding window (callers wait) and a daily quota (callers are rejected).
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pix-settlement-bridge/internal/models"

	"go.uber.org/zap"
)

var (
	ErrDailyQuotaExceeded = errors.New("daily quota exceeded")
	ErrUnknownEndpoint    = errors.New("no rate limit rule for endpoint")
)

// QuotaExceededError is returned once an endpoint's daily quota is used up
type QuotaExceededError struct {
	Key     string
	Limit   int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota of %d calls for %s exhausted, resets at %s",
		e.Limit, e.Key, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrDailyQuotaExceeded
}

// Limiter runs fn once the endpoint identified by key may be called
type Limiter interface {
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// QuotaCounter consumes one call from a (key, day) quota. It reports false,
// without consuming, when limit calls were already taken.
type QuotaCounter interface {
	Take(ctx context.Context, key, day string, limit int) (bool, error)
}

// WindowLimiter enforces models.RateLimitRule per endpoint key.
// Window state is process-local; the daily quota is as shared as its QuotaCounter.
type WindowLimiter struct {
	rules    map[string]models.RateLimitRule
	quota    QuotaCounter
	location *time.Location
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	windows map[string]*window
}

type Option func(*WindowLimiter)

// WithClock replaces the time source and the wait function, for tests
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *WindowLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithLocation sets the zone whose midnight resets the daily quota
func WithLocation(loc *time.Location) Option {
	return func(l *WindowLimiter) {
		if loc != nil {
			l.location = loc
		}
	}
}

func NewWindowLimiter(rules map[string]models.RateLimitRule, quota QuotaCounter, opts ...Option) *WindowLimiter {
	if quota == nil {
		quota = NewMemoryCounter()
	}
	l := &WindowLimiter{
		rules:    rules,
		quota:    quota,
		location: time.UTC,
		now:      time.Now,
		sleep:    sleepContext,
		windows:  make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *WindowLimiter) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	rule, ok := l.rules[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}

	if rule.DailyQuota > 0 {
		now := l.now().In(l.location)
		allowed, err := l.quota.Take(ctx, key, now.Format(time.DateOnly), rule.DailyQuota)
		if err != nil {
			return fmt.Errorf("failed to check daily quota for %s: %w", key, err)
		}
		if !allowed {
			resetAt := nextMidnight(now)
			zap.L().Warn("Daily quota exhausted",
				zap.String("endpoint", key),
				zap.Int("limit", rule.DailyQuota),
				zap.Time("reset_at", resetAt))
			return &QuotaExceededError{Key: key, Limit: rule.DailyQuota, ResetAt: resetAt}
		}
	}

	if wait := l.reserve(key, rule); wait > 0 {
		zap.L().Debug("Throttling provider call", zap.String("endpoint", key), zap.Duration("wait", wait))
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fn(ctx)
}

// reserve books the caller's slot and returns how long to wait for it.
// Slots are handed out under the window lock, so arrival order is call order.
func (l *WindowLimiter) reserve(key string, rule models.RateLimitRule) time.Duration {
	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	l.mu.Unlock()

	now := l.now()
	at := w.book(now, rule.Calls, rule.Window)
	return at.Sub(now)
}

// window holds the start times of granted calls, ascending, including
// reservations still in the future.
type window struct {
	mu    sync.Mutex
	slots []time.Time
}

func (w *window) book(now time.Time, calls int, length time.Duration) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	// forget calls that no longer share a window with now
	horizon := now.Add(-length)
	drop := 0
	for drop < len(w.slots) && !w.slots[drop].After(horizon) {
		drop++
	}
	w.slots = w.slots[drop:]

	at := now
	if len(w.slots) >= calls {
		if free := w.slots[len(w.slots)-calls].Add(length); free.After(at) {
			at = free
		}
	}
	if n := len(w.slots); n > 0 && w.slots[n-1].After(at) {
		at = w.slots[n-1]
	}
	w.slots = append(w.slots, at)
	return at
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
