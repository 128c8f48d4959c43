package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultRPM = 60

// RateLimiter is a per-provider token bucket measured in requests per
// minute, starting full. A 429 with Retry-After drains the bucket and
// blocks callers until the provider's cooldown expires, so the next
// extraction does not hit the same wall.
type RateLimiter struct {
	rpm     int
	limiter *rate.Limiter

	mu            sync.Mutex
	pausedTill    time.Time
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	Utilization     float64       `json:"utilization"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
	PausedUntil     time.Time     `json:"paused_until,omitempty"`
}

// NewRateLimiter creates a limiter allowing rpm requests per minute.
// rpm <= 0 selects the default.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = defaultRPM
	}
	return &RateLimiter{
		rpm:     rpm,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.waitPause(ctx); err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.totalConsumed++
	r.totalWaited += time.Since(start)
	r.mu.Unlock()
	return nil
}

func (r *RateLimiter) waitPause(ctx context.Context) error {
	for {
		r.mu.Lock()
		wait := time.Until(r.pausedTill)
		r.mu.Unlock()
		if wait <= 0 {
			return ctx.Err()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryConsume takes a token if one is available without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pausedTill.After(time.Now()) || !r.limiter.Allow() {
		return false
	}
	r.totalConsumed++
	return true
}

// Record429 notes a rate-limit response. A positive retryAfter drains the
// bucket and pauses it for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	if retryAfter <= 0 {
		return
	}
	if n := int(r.limiter.TokensAt(now)); n > 0 {
		r.limiter.AllowN(now, n)
	}
	if until := now.Add(retryAfter); until.After(r.pausedTill) {
		r.pausedTill = until
	}
}

// Status returns current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	tokens := r.limiter.TokensAt(now)
	utilization := 1.0 - tokens/float64(r.rpm)
	if utilization < 0 {
		utilization = 0
	}

	s := RateLimiterStatus{
		TokensAvailable: int(tokens),
		TokensLimit:     r.rpm,
		Utilization:     utilization,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
	switch {
	case r.pausedTill.After(now):
		s.PausedUntil = r.pausedTill
		s.TimeUntilToken = r.pausedTill.Sub(now)
	case tokens < 1:
		perToken := time.Minute / time.Duration(r.rpm)
		s.TimeUntilToken = time.Duration((1 - tokens) * float64(perToken))
	}
	return s
}
