// Package pipeline implements the pipeline driver of C7 (the score
// formulas live in internal/score): the hourly and daily flows share one skeleton — fetch active
// queries, check the cost budget, create a run record, orchestrate
// scrapes, extract and store rankings, compute and store scores, and
// finalize the run — per spec.md §4.7.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levoit/visibilitypipeline/internal/coordination"
	"github.com/levoit/visibilitypipeline/internal/logging"
	"github.com/levoit/visibilitypipeline/internal/metrics"
	"github.com/levoit/visibilitypipeline/internal/models"
	"github.com/levoit/visibilitypipeline/internal/orchestrator"
	"github.com/levoit/visibilitypipeline/internal/rank"
	"github.com/levoit/visibilitypipeline/internal/score"
	"github.com/levoit/visibilitypipeline/internal/store"
	"github.com/levoit/visibilitypipeline/internal/timeseries"
)

const (
	flowHourly = "hourly_rank_check"
	flowDaily  = "daily_full_scan"
)

// RunSummary is what callers (the scheduler, operator tooling) see after a
// flow invocation.
type RunSummary struct {
	RunID             string
	Status            models.RunStatus
	QueryCount        int
	SuccessCount      int
	FailureCount      int
	QuarantineCount   int
	CostUSD           float64
	Duration          time.Duration
	DailyScoresCount  int
}

// Driver ties the relational/time-series/coordination stores and the
// orchestrator together behind the two flow entry points.
type Driver struct {
	relational  *store.Store
	timeseries  *timeseries.Store
	cost        *coordination.CostTracker
	orchestrate *orchestrator.Orchestrator
	primaryBrand string

	mu           sync.Mutex
	hourlyRunning bool
	dailyRunning  bool
}

// NewDriver builds a pipeline Driver over the given dependencies, matching
// spec.md §6's "async function taking: relational session, time-series
// session, coordination-store client, orchestrator, daily budget" signature
// translated into Go's explicit-constructor-injection idiom.
func NewDriver(relational *store.Store, ts *timeseries.Store, cost *coordination.CostTracker, orch *orchestrator.Orchestrator, primaryBrand string) *Driver {
	return &Driver{
		relational:   relational,
		timeseries:   ts,
		cost:         cost,
		orchestrate:  orch,
		primaryBrand: primaryBrand,
	}
}

// RunHourly executes the hourly_rank_check flow. The spec leaves the
// "should the hourly flow filter by priority" Open Question unresolved;
// per SPEC_FULL.md §9 this implementation does not filter — both flows run
// against the same active-query set.
func (d *Driver) RunHourly(ctx context.Context) (RunSummary, error) {
	d.mu.Lock()
	if d.hourlyRunning {
		d.mu.Unlock()
		return RunSummary{}, fmt.Errorf("hourly flow already in progress")
	}
	d.hourlyRunning = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.hourlyRunning = false
		d.mu.Unlock()
	}()

	return d.run(ctx, flowHourly, nil)
}

// RunDaily executes the daily_full_scan flow: the shared skeleton plus a
// second aggregation pass over internal/timeseries.
func (d *Driver) RunDaily(ctx context.Context) (RunSummary, error) {
	d.mu.Lock()
	if d.dailyRunning {
		d.mu.Unlock()
		return RunSummary{}, fmt.Errorf("daily flow already in progress")
	}
	d.dailyRunning = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.dailyRunning = false
		d.mu.Unlock()
	}()

	return d.run(ctx, flowDaily, func(ctx context.Context, brandsByQuery map[string][]string) (int, error) {
		today := time.Now().UTC()
		if err := d.timeseries.RefreshDailyRollup(ctx, today); err != nil {
			return 0, err
		}
		return d.computeAndStoreDailyScores(ctx, today, brandsByQuery)
	})
}

func (d *Driver) run(ctx context.Context, flowName string, afterScores func(context.Context, map[string][]string) (int, error)) (RunSummary, error) {
	start := time.Now()

	queries, err := d.relational.ActiveQueries(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("fetch active queries: %w", err)
	}
	if len(queries) == 0 {
		logging.Info().Str("flow", flowName).Msg("no active queries, skipping run")
		return RunSummary{Status: models.RunStatusCompleted}, nil
	}

	run := models.PipelineRun{
		ID:        uuid.NewString(),
		FlowName:  flowName,
		Status:    models.RunStatusRunning,
		StartedAt: start,
	}
	if err := d.relational.CreateRun(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("create pipeline run: %w", err)
	}
	ctx = logging.ContextWithRunID(ctx, run.ID)

	// From here the run row exists and must be closed to a terminal status
	// exactly once, even on a fatal error, so every early return below goes
	// through failRun instead of returning directly.
	failRun := func(queryCount int, cause error) (RunSummary, error) {
		run.Status = models.RunStatusFailed
		run.QueriesAttempted = queryCount
		run.ErrorDetail = truncateErrorDetail(cause)
		run.CompletedAt = time.Now().UTC()
		run.Duration = time.Since(start)
		if finalizeErr := d.relational.FinalizeRun(ctx, run); finalizeErr != nil {
			logging.CtxErr(ctx, finalizeErr).Str("flow", flowName).Msg("failed to finalize failed run")
		}
		metrics.RecordPipelineRun(flowName, "failed", run.Duration, queryCount)
		return RunSummary{RunID: run.ID, Status: run.Status, QueryCount: queryCount}, cause
	}

	budgetExceeded, err := d.cost.IsBudgetExceeded()
	if err != nil {
		return failRun(len(queries), fmt.Errorf("check daily budget: %w", err))
	}
	if budgetExceeded {
		cost, _ := d.cost.Today()
		run.Status = models.RunStatusCostHalted
		run.CostUSD = cost
		run.CompletedAt = time.Now().UTC()
		run.Duration = time.Since(start)
		if err := d.relational.FinalizeRun(ctx, run); err != nil {
			return failRun(len(queries), fmt.Errorf("finalize cost-halted run: %w", err))
		}
		metrics.RecordCostHalt()
		metrics.RecordPipelineRun(flowName, "cost-halted", run.Duration, len(queries))
		logging.CtxWarn(ctx).Str("flow", flowName).Float64("cost_usd", cost).Msg("daily budget exceeded, halting run")
		return RunSummary{RunID: run.ID, Status: run.Status, QueryCount: len(queries), CostUSD: cost}, nil
	}

	orchQueries := make([]orchestrator.Query, len(queries))
	brandsByQuery := make(map[string][]string, len(queries))
	for i, q := range queries {
		orchQueries[i] = orchestrator.Query{ID: q.ID, Text: q.Text, Brands: q.Brands}
		brandsByQuery[q.ID] = q.Brands
	}

	orchResult := d.orchestrate.Run(ctx, orchQueries, []models.Platform{
		models.PlatformChatGPT, models.PlatformPerplexity, models.PlatformGoogleAI,
	})

	quarantineCount := d.storeResults(ctx, run.ID, orchResult, brandsByQuery)

	seenQueries := make(map[string]struct{})
	for _, s := range orchResult.Successes {
		seenQueries[s.QueryID] = struct{}{}
	}
	scoreCount := 0
	for queryID := range seenQueries {
		queryCtx := logging.ContextWithQueryID(ctx, queryID)
		if err := d.computeAndStoreScores(queryCtx, run.ID, queryID, brandsByQuery[queryID]); err != nil {
			logging.CtxErr(queryCtx, err).Str("flow", flowName).Msg("failed to compute scores")
			continue
		}
		scoreCount++
	}
	metrics.RecordScoresComputed(flowName, scoreCount)

	dailyScoresCount := 0
	if afterScores != nil {
		n, err := afterScores(ctx, brandsByQuery)
		if err != nil {
			logging.CtxErr(ctx, err).Str("flow", flowName).Msg("post-score aggregation step failed")
		}
		dailyScoresCount = n
	}

	cost, err := d.cost.Today()
	if err != nil {
		logging.CtxErr(ctx, err).Str("flow", flowName).Msg("failed to read today's cost")
	}

	run.Status = models.RunStatusCompleted
	run.QueriesAttempted = len(queries)
	run.Successes = len(orchResult.Successes)
	run.Failures = len(orchResult.Failures)
	run.QuarantineCount = quarantineCount
	run.CostUSD = cost
	run.CompletedAt = time.Now().UTC()
	run.Duration = time.Since(start)

	if err := d.relational.FinalizeRun(ctx, run); err != nil {
		return failRun(len(queries), fmt.Errorf("finalize run: %w", err))
	}

	metrics.RecordPipelineRun(flowName, "completed", run.Duration, len(queries))
	metrics.SetCostBudgetRemaining(mustRemaining(d.cost))

	return RunSummary{
		RunID:            run.ID,
		Status:           run.Status,
		QueryCount:       len(queries),
		SuccessCount:     run.Successes,
		FailureCount:     run.Failures,
		QuarantineCount:  run.QuarantineCount,
		CostUSD:          cost,
		Duration:         run.Duration,
		DailyScoresCount: dailyScoresCount,
	}, nil
}

// maxErrorDetailChars bounds PipelineRun.ErrorDetail per spec.md §7's
// "truncated error detail <= 500 chars" requirement.
const maxErrorDetailChars = 500

func truncateErrorDetail(err error) string {
	msg := err.Error()
	if len(msg) <= maxErrorDetailChars {
		return msg
	}
	return msg[:maxErrorDetailChars]
}

func mustRemaining(c *coordination.CostTracker) float64 {
	remaining, err := c.RemainingBudget()
	if err != nil {
		return 0
	}
	return remaining
}

// storeResults runs rank extraction over every successful scrape and writes
// non-absent rankings to both the relational and time-series stores.
func (d *Driver) storeResults(ctx context.Context, runID string, result orchestrator.Result, brandsByQuery map[string][]string) int {
	now := time.Now().UTC()
	for _, success := range result.Successes {
		itemCtx := logging.ContextWithPlatform(logging.ContextWithQueryID(ctx, success.QueryID), string(success.Platform))
		brands := brandsByQuery[success.QueryID]
		results := rank.Extract(success.Processed.CleanText, brands)

		for _, r := range results {
			if r.RankPosition == 0 {
				continue
			}
			ranking := models.Ranking{
				ID:           uuid.NewString(),
				QueryID:      success.QueryID,
				Platform:     success.Platform,
				Brand:        r.Brand,
				RankPosition: r.RankPosition,
				Snippet:      r.Snippet,
				SnapshotRef:  success.Processed.SnapshotRef,
				ScrapedAt:    now,
				RunID:        runID,
			}
			if err := d.relational.InsertRanking(ctx, ranking); err != nil {
				logging.CtxErr(itemCtx, err).Str("brand", r.Brand).Msg("failed to insert ranking")
				continue
			}

			visScore := score.PlatformContribution(success.Platform, r.RankPosition)
			tsRank := models.TimeSeriesRank{
				Time:            now,
				QueryID:         success.QueryID,
				Platform:        success.Platform,
				Brand:           r.Brand,
				RankPosition:    r.RankPosition,
				VisibilityScore: visScore,
			}
			if err := d.timeseries.InsertRank(ctx, tsRank); err != nil {
				logging.CtxErr(itemCtx, err).Str("brand", r.Brand).Msg("failed to insert time-series rank")
			}
		}
	}

	for _, f := range result.Failures {
		failureCtx := logging.ContextWithPlatform(logging.ContextWithQueryID(ctx, f.QueryID), string(f.Platform))
		logging.CtxError(failureCtx).Str("error_kind", f.ErrorKind).Str("error_detail", f.ErrorDetail).Msg("scrape task failed")
	}

	return countQuarantined(result.Failures)
}

func countQuarantined(failures []orchestrator.ScrapeFailure) int {
	count := 0
	for _, f := range failures {
		if strings.HasPrefix(f.ErrorKind, "quarantine:") {
			count++
		}
	}
	return count
}

// computeAndStoreScores reads back every ranking this run wrote for
// queryID, computes a per-brand visibility score and the primary brand's
// competitive gap, and writes vis_score rows for the raw period.
func (d *Driver) computeAndStoreScores(ctx context.Context, runID, queryID string, brands []string) error {
	rankings, err := d.relational.RankingsForQuery(ctx, runID, queryID)
	if err != nil {
		return fmt.Errorf("load rankings for scoring: %w", err)
	}

	byBrand := make(map[string][]score.PlatformRanking)
	for _, r := range rankings {
		byBrand[r.Brand] = append(byBrand[r.Brand], score.PlatformRanking{Platform: r.Platform, RankPosition: r.RankPosition})
	}

	brandScores := make(map[string]float64, len(brands))
	for _, brand := range brands {
		brandScores[brand] = score.VisibilityScore(byBrand[brand])
	}

	primaryScore := brandScores[d.primaryBrand]
	competitorScores := make(map[string]float64, len(brandScores))
	for brand, s := range brandScores {
		if brand != d.primaryBrand {
			competitorScores[brand] = s
		}
	}
	gap := score.CompetitiveGap(primaryScore, competitorScores)

	now := time.Now().UTC()
	for brand, s := range brandScores {
		var gapPtr *float64
		if brand == d.primaryBrand {
			g := gap
			gapPtr = &g
		}
		sc := models.Score{
			ID:              uuid.NewString(),
			QueryID:         queryID,
			Brand:           brand,
			VisibilityScore: s,
			CompetitiveGap:  gapPtr,
			Period:          models.PeriodRaw,
			ComputedAt:      now,
		}
		if err := d.relational.InsertScore(ctx, sc); err != nil {
			return fmt.Errorf("insert score for brand %s: %w", brand, err)
		}
	}
	return nil
}

// computeAndStoreDailyScores reads back the day's ts_daily_rank aggregates
// (grouped by query_id, brand per spec.md §6), computes the primary
// brand's competitive gap per query against that day's averaged
// competitor scores, and writes vis_score rows with period=daily. It is
// the daily flow's second aggregation pass (spec.md §4.7).
func (d *Driver) computeAndStoreDailyScores(ctx context.Context, day time.Time, brandsByQuery map[string][]string) (int, error) {
	aggregates, err := d.timeseries.DailyAggregates(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("load daily aggregates: %w", err)
	}

	byQuery := make(map[string]map[string]float64)
	for _, a := range aggregates {
		brands, ok := brandsByQuery[a.QueryID]
		if !ok {
			continue
		}
		if byQuery[a.QueryID] == nil {
			byQuery[a.QueryID] = make(map[string]float64, len(brands))
		}
		byQuery[a.QueryID][a.Brand] = a.AvgVisibilityScore
	}

	now := time.Now().UTC()
	count := 0
	for queryID, brandScores := range byQuery {
		primaryScore := brandScores[d.primaryBrand]
		competitorScores := make(map[string]float64, len(brandScores))
		for brand, s := range brandScores {
			if brand != d.primaryBrand {
				competitorScores[brand] = s
			}
		}
		gap := score.CompetitiveGap(primaryScore, competitorScores)

		for brand, s := range brandScores {
			var gapPtr *float64
			if brand == d.primaryBrand {
				g := gap
				gapPtr = &g
			}
			sc := models.Score{
				ID:              uuid.NewString(),
				QueryID:         queryID,
				Brand:           brand,
				VisibilityScore: score.Round2(s),
				CompetitiveGap:  gapPtr,
				Period:          models.PeriodDaily,
				ComputedAt:      now,
			}
			if err := d.relational.InsertScore(ctx, sc); err != nil {
				return count, fmt.Errorf("insert daily score for query %s brand %s: %w", queryID, brand, err)
			}
		}
		count++
	}
	return count, nil
}
