package reddit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests across the configured delay window and
// computes the jittered waits the rest of the engine sleeps on. All
// randomness goes through one injectable rng.
type RateLimiter struct {
	limiter *rate.Limiter
	window  DelayRange

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRateLimiter(requestDelay DelayRange, rng *rand.Rand) *RateLimiter {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	floor := time.Duration(requestDelay.Min * float64(time.Second))
	if floor <= 0 {
		floor = time.Millisecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(floor), 1),
		window:  requestDelay,
		rng:     rng,
	}
}

// Wait blocks until the next request is allowed to go out: the window
// floor is paced by the limiter, then a uniform draw spreads the
// request over the rest of the window. Wired into the http client so
// every request pays the delay.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	if extra := r.windowJitter(); extra > 0 {
		return r.Sleep(ctx, extra)
	}
	return nil
}

// windowJitter draws the spread beyond the floor of the request window.
func (r *RateLimiter) windowJitter() time.Duration {
	if r.window.Max <= r.window.Min {
		return 0
	}
	return r.Jitter(DelayRange{Max: r.window.Max - r.window.Min})
}

// Jitter draws a uniform wait from the given window.
func (r *RateLimiter) Jitter(window DelayRange) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := window.Max - window.Min
	secs := window.Min
	if span > 0 {
		secs += r.rng.Float64() * span
	}
	return time.Duration(secs * float64(time.Second))
}

// Backoff computes the wait before retry number attempt: an
// exponential term plus a uniform jitter so retries don't synchronize.
func (r *RateLimiter) Backoff(attempt int, unit time.Duration, jitter DelayRange) time.Duration {
	return time.Duration(1<<uint(attempt))*unit + r.Jitter(jitter)
}

// Sleep waits for d, returning early if ctx is cancelled.
func (r *RateLimiter) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
