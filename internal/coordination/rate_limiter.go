package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/levoit/visibilitypipeline/internal/models"
)

// window is the sliding-window width used for rate-limit admission.
const window = time.Hour

// RateLimiter enforces a per-platform hourly request cap backed by a
// coordination Store. Each admitted request is recorded as a uniquely keyed,
// TTL-bearing entry under a platform-scoped prefix; admission counts the
// live entries under that prefix rather than maintaining an explicit
// counter, so expiry (not an active sweep) is what makes the window slide.
type RateLimiter struct {
	store *Store
	caps  map[models.Platform]int
}

// NewRateLimiter builds a limiter with the given per-platform hourly caps.
func NewRateLimiter(store *Store, caps map[models.Platform]int) *RateLimiter {
	return &RateLimiter{store: store, caps: caps}
}

func (r *RateLimiter) prefix(platform models.Platform) []byte {
	return []byte(fmt.Sprintf("rl:%s:", platform))
}

func (r *RateLimiter) capFor(platform models.Platform) int {
	if limit, ok := r.caps[platform]; ok {
		return limit
	}
	return 0
}

// TryAcquire reports whether one request fits under platform's hourly cap
// right now; on true it records the admission.
func (r *RateLimiter) TryAcquire(ctx context.Context, platform models.Platform) (bool, error) {
	if err := r.store.checkOpen(); err != nil {
		return false, err
	}
	prefix := r.prefix(platform)
	count, err := r.store.windowCount(prefix)
	if err != nil {
		return false, fmt.Errorf("rate limiter window count: %w", err)
	}
	if count >= r.capFor(platform) {
		return false, nil
	}
	if err := r.store.windowInsert(prefix, window); err != nil {
		return false, fmt.Errorf("rate limiter window insert: %w", err)
	}
	return true, nil
}

// WaitAndAcquire polls TryAcquire at pollInterval until it succeeds, ctx is
// canceled, or timeout elapses. Returns false on timeout (not an error).
func (r *RateLimiter) WaitAndAcquire(ctx context.Context, platform models.Platform, timeout, pollInterval time.Duration) (bool, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.TryAcquire(ctx, platform)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Remaining returns the number of additional requests platform may admit
// before exhausting its hourly cap.
func (r *RateLimiter) Remaining(platform models.Platform) (int, error) {
	count, err := r.store.windowCount(r.prefix(platform))
	if err != nil {
		return 0, err
	}
	remaining := r.capFor(platform) - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears all recorded admissions for platform. Intended for operator
// use and tests.
func (r *RateLimiter) Reset(platform models.Platform) error {
	return r.store.windowReset(r.prefix(platform))
}
