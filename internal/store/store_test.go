package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/levoit/visibilitypipeline/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "relational.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertQueryRejectsOverlongText(t *testing.T) {
	s := openTestStore(t)
	q := models.Query{ID: uuid.NewString(), Text: string(make([]byte, 501)), Active: true}
	err := s.InsertQuery(context.Background(), q)
	require.Error(t, err)
}

func TestInsertAndFetchActiveQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	queries := []models.Query{
		{ID: uuid.NewString(), Text: "best ai visibility tools", Category: models.CategoryGeneral, Priority: models.PriorityLow, Brands: []string{"Acme", "Globex"}, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), Text: "acme vs globex", Category: models.CategoryBrandSearch, Priority: models.PriorityHigh, Brands: []string{"Acme", "Globex"}, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), Text: "inactive query", Category: models.CategoryGeneral, Priority: models.PriorityHigh, Brands: []string{"Acme"}, Active: false, CreatedAt: now, UpdatedAt: now},
	}
	for _, q := range queries {
		require.NoError(t, s.InsertQuery(ctx, q))
	}

	active, err := s.ActiveQueries(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, models.PriorityHigh, active[0].Priority, "high priority must sort first")
	require.ElementsMatch(t, []string{"Acme", "Globex"}, active[0].Brands)
}

func TestRankingAndScoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID := uuid.NewString()
	require.NoError(t, s.CreateRun(ctx, models.PipelineRun{ID: runID, FlowName: "hourly_rank_check", StartedAt: time.Now().UTC()}))

	queryID := uuid.NewString()
	ranking := models.Ranking{
		ID: uuid.NewString(), QueryID: queryID, Platform: models.PlatformChatGPT,
		Brand: "Acme", RankPosition: 1, Snippet: "Acme is great", ScrapedAt: time.Now().UTC(), RunID: runID,
	}
	require.NoError(t, s.InsertRanking(ctx, ranking))

	rankings, err := s.RankingsForQuery(ctx, runID, queryID)
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	require.Equal(t, "Acme", rankings[0].Brand)
	require.Equal(t, models.PlatformChatGPT, rankings[0].Platform)

	gap := 10.5
	require.NoError(t, s.InsertScore(ctx, models.Score{
		ID: uuid.NewString(), QueryID: queryID, Brand: "Acme", VisibilityScore: 66.25,
		CompetitiveGap: &gap, Period: models.PeriodRaw, ComputedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.FinalizeRun(ctx, models.PipelineRun{
		ID: runID, FlowName: "hourly_rank_check", Status: models.RunStatusCompleted,
		QueriesAttempted: 1, Successes: 1, CompletedAt: time.Now().UTC(),
	}))
}

func TestUpsertBrandIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	brand := models.Brand{ID: uuid.NewString(), Name: "Acme", IsPrimary: true}
	require.NoError(t, s.UpsertBrand(ctx, brand))
	require.NoError(t, s.UpsertBrand(ctx, brand))
}
