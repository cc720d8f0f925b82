package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levoit/visibilitypipeline/internal/content"
	"github.com/levoit/visibilitypipeline/internal/coordination"
	"github.com/levoit/visibilitypipeline/internal/models"
)

type fakeScraper struct {
	processed *content.Processed
	err       error
}

func (f *fakeScraper) Scrape(_ context.Context, _ string) (*content.Processed, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.processed, nil
}

func newCoordination(t *testing.T) *coordination.Store {
	t.Helper()
	store, err := coordination.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunSucceedsAndMarksSeen(t *testing.T) {
	store := newCoordination(t)
	limiter := coordination.NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 10})
	dedup := coordination.NewDedup(store)

	scraper := &fakeScraper{processed: &content.Processed{CleanText: "some clean text"}}
	orch := New(map[models.Platform]Scraper{models.PlatformChatGPT: scraper}, limiter, dedup)

	result := orch.Run(context.Background(), []Query{{ID: "q1", Text: "acme", Brands: []string{"Acme"}}}, []models.Platform{models.PlatformChatGPT})

	require.Len(t, result.Successes, 1)
	require.Empty(t, result.Failures)
	require.Equal(t, 0, result.SkippedDedup)
	require.Equal(t, 0, result.SkippedRateLimit)

	seen, err := dedup.Seen("q1", models.PlatformChatGPT)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestRunSkipsDuplicateTasks(t *testing.T) {
	store := newCoordination(t)
	limiter := coordination.NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 10})
	dedup := coordination.NewDedup(store)
	require.NoError(t, dedup.MarkSeen("q1", models.PlatformChatGPT))

	scraper := &fakeScraper{processed: &content.Processed{CleanText: "text"}}
	orch := New(map[models.Platform]Scraper{models.PlatformChatGPT: scraper}, limiter, dedup)

	result := orch.Run(context.Background(), []Query{{ID: "q1", Text: "acme"}}, []models.Platform{models.PlatformChatGPT})

	require.Equal(t, 1, result.SkippedDedup)
	require.Empty(t, result.Successes)
}

func TestRunSkipsWhenRateLimitExhausted(t *testing.T) {
	store := newCoordination(t)
	limiter := coordination.NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 0})
	dedup := coordination.NewDedup(store)

	scraper := &fakeScraper{processed: &content.Processed{CleanText: "text"}}
	orch := New(map[models.Platform]Scraper{models.PlatformChatGPT: scraper}, limiter, dedup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := orch.Run(ctx, []Query{{ID: "q1", Text: "acme"}}, []models.Platform{models.PlatformChatGPT})
	require.Equal(t, 1, result.SkippedRateLimit)
}

func TestRunRecordsScraperFailureWithQuarantineKind(t *testing.T) {
	store := newCoordination(t)
	limiter := coordination.NewRateLimiter(store, map[models.Platform]int{models.PlatformChatGPT: 10})
	dedup := coordination.NewDedup(store)

	scraper := &fakeScraper{err: &content.QuarantineError{Kind: "empty_content", Detail: "no content"}}
	orch := New(map[models.Platform]Scraper{models.PlatformChatGPT: scraper}, limiter, dedup)

	result := orch.Run(context.Background(), []Query{{ID: "q1", Text: "acme"}}, []models.Platform{models.PlatformChatGPT})

	require.Len(t, result.Failures, 1)
	require.Equal(t, "quarantine:empty_content", result.Failures[0].ErrorKind)
}

func TestRunSkipsUnconfiguredPlatforms(t *testing.T) {
	store := newCoordination(t)
	limiter := coordination.NewRateLimiter(store, map[models.Platform]int{})
	dedup := coordination.NewDedup(store)

	orch := New(map[models.Platform]Scraper{}, limiter, dedup)
	result := orch.Run(context.Background(), []Query{{ID: "q1", Text: "acme"}}, []models.Platform{models.PlatformGoogleAI})

	require.Equal(t, 0, result.TotalTasks())
}

func TestErrorKindDefaultsToTransient(t *testing.T) {
	require.Equal(t, "transient", errorKind(errors.New("boom")))
}
