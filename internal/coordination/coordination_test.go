package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/levoit/visibilitypipeline/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRateLimiterTryAcquireRespectsCap(t *testing.T) {
	store := openTestStore(t)
	limiter := NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 2})
	ctx := context.Background()

	ok1, err := limiter.TryAcquire(ctx, models.PlatformChatGPT)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := limiter.TryAcquire(ctx, models.PlatformChatGPT)
	require.NoError(t, err)
	require.True(t, ok2)

	ok3, err := limiter.TryAcquire(ctx, models.PlatformChatGPT)
	require.NoError(t, err)
	require.False(t, ok3, "third admission should exceed the cap of 2")
}

func TestRateLimiterUnknownPlatformHasZeroCap(t *testing.T) {
	store := openTestStore(t)
	limiter := NewRateLimiter(store, map[models.Platform]int{})
	ok, err := limiter.TryAcquire(context.Background(), models.PlatformGoogleAI)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiterResetClearsAdmissions(t *testing.T) {
	store := openTestStore(t)
	limiter := NewRateLimiter(store, map[models.Platform]int{models.PlatformPerplexity: 1})
	ctx := context.Background()

	ok, err := limiter.TryAcquire(ctx, models.PlatformPerplexity)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, limiter.Reset(models.PlatformPerplexity))

	ok, err = limiter.TryAcquire(ctx, models.PlatformPerplexity)
	require.NoError(t, err)
	require.True(t, ok, "admission should be available again after Reset")
}

func TestRateLimiterWaitAndAcquireTimesOut(t *testing.T) {
	store := openTestStore(t)
	limiter := NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 1})
	ctx := context.Background()

	_, err := limiter.TryAcquire(ctx, models.PlatformChatGPT)
	require.NoError(t, err)

	ok, err := limiter.WaitAndAcquire(ctx, models.PlatformChatGPT, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDedupSeenAndMarkSeen(t *testing.T) {
	store := openTestStore(t)
	dedup := NewDedup(store)

	seen, err := dedup.Seen("q1", models.PlatformChatGPT)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, dedup.MarkSeen("q1", models.PlatformChatGPT))

	seen, err = dedup.Seen("q1", models.PlatformChatGPT)
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = dedup.Seen("q1", models.PlatformPerplexity)
	require.NoError(t, err)
	require.False(t, seen, "dedup is scoped per platform")
}

func TestCostTrackerAddIsMonotonicAndRejectsNegative(t *testing.T) {
	store := openTestStore(t)
	tracker := NewCostTracker(store, 10.0)

	total, err := tracker.Add(3)
	require.NoError(t, err)
	require.Equal(t, 3.0, total)

	total, err = tracker.Add(4)
	require.NoError(t, err)
	require.Equal(t, 7.0, total)

	_, err = tracker.Add(-1)
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestCostTrackerBudgetExceeded(t *testing.T) {
	store := openTestStore(t)
	tracker := NewCostTracker(store, 5.0)

	exceeded, err := tracker.IsBudgetExceeded()
	require.NoError(t, err)
	require.False(t, exceeded)

	_, err = tracker.Add(5.0)
	require.NoError(t, err)

	exceeded, err = tracker.IsBudgetExceeded()
	require.NoError(t, err)
	require.True(t, exceeded)

	remaining, err := tracker.RemainingBudget()
	require.NoError(t, err)
	require.Equal(t, 0.0, remaining)
}

func TestCostTrackerResetToday(t *testing.T) {
	store := openTestStore(t)
	tracker := NewCostTracker(store, 10.0)

	_, err := tracker.Add(2)
	require.NoError(t, err)
	require.NoError(t, tracker.ResetToday())

	total, err := tracker.Today()
	require.NoError(t, err)
	require.Equal(t, 0.0, total)
}

func TestStoreCloseRejectsFurtherUse(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	limiter := NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 1})
	_, err = limiter.TryAcquire(context.Background(), models.PlatformChatGPT)
	require.ErrorIs(t, err, ErrStoreClosed)
}
