// Command visibilitypipeline runs the AI visibility scrape-and-score
// pipeline as a standalone supervised binary: it loads configuration,
// opens the coordination, document, relational, and time-series stores,
// builds one scraper client per platform, and schedules the hourly and
// daily flows on a suture supervisor tree.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/levoit/visibilitypipeline/internal/config"
	"github.com/levoit/visibilitypipeline/internal/coordination"
	"github.com/levoit/visibilitypipeline/internal/docstore"
	"github.com/levoit/visibilitypipeline/internal/logging"
	"github.com/levoit/visibilitypipeline/internal/models"
	"github.com/levoit/visibilitypipeline/internal/orchestrator"
	"github.com/levoit/visibilitypipeline/internal/pipeline"
	"github.com/levoit/visibilitypipeline/internal/scheduler"
	"github.com/levoit/visibilitypipeline/internal/scraper"
	"github.com/levoit/visibilitypipeline/internal/store"
	"github.com/levoit/visibilitypipeline/internal/supervisor"
	"github.com/levoit/visibilitypipeline/internal/timeseries"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("primary_brand", cfg.Brand.Primary).Msg("starting visibility pipeline")

	coordStore, err := coordination.Open(cfg.Store.CoordinationDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open coordination store")
	}
	defer closeLogged("coordination store", coordStore.Close)

	docs, err := docstore.Open(cfg.Store.DocumentDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open document store")
	}
	defer closeLogged("document store", docs.Close)

	relational, err := store.Open(cfg.Store.RelationalPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open relational store")
	}
	defer closeLogged("relational store", relational.Close)

	ts, err := timeseries.Open(cfg.Store.TimeseriesPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open time-series store")
	}
	defer closeLogged("time-series store", ts.Close)

	rateLimiter := coordination.NewRateLimiter(coordStore, map[models.Platform]int{
		models.PlatformChatGPT:    cfg.RateLimit.ChatGPT,
		models.PlatformPerplexity: cfg.RateLimit.Perplexity,
		models.PlatformGoogleAI:   cfg.RateLimit.GoogleAI,
	})
	dedup := coordination.NewDedup(coordStore)
	costTracker := coordination.NewCostTracker(coordStore, cfg.Cost.DailyBudgetUSD)

	scrapers := make(map[models.Platform]orchestrator.Scraper, len(scraper.Platforms()))
	for _, p := range scraper.Platforms() {
		client := scraper.NewClient(p, cfg.Scraper.BaseURL, cfg.Scraper.Timeout, docs)
		scrapers[p.PlatformTag()] = client
	}

	orch := orchestrator.New(scrapers, rateLimiter, dedup)
	driver := pipeline.NewDriver(relational, ts, costTracker, orch, cfg.Brand.Primary)

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddSchedulerService(scheduler.NewFlowRunner("hourly_rank_check", cfg.Scheduler.HourlyInterval, adaptFlow(driver.RunHourly)))
	tree.AddSchedulerService(scheduler.NewFlowRunner("daily_full_scan", cfg.Scheduler.DailyInterval, adaptFlow(driver.RunDaily)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	logging.Info().Msg("visibility pipeline stopped gracefully")
}

// adaptFlow narrows a pipeline.Driver flow method to scheduler.FlowFunc's
// smaller RunSummary shape, keeping internal/scheduler decoupled from
// internal/pipeline.
func adaptFlow(run func(context.Context) (pipeline.RunSummary, error)) scheduler.FlowFunc {
	return func(ctx context.Context) (scheduler.RunSummary, error) {
		summary, err := run(ctx)
		if err != nil {
			return scheduler.RunSummary{}, err
		}
		return scheduler.RunSummary{
			RunID:        summary.RunID,
			Status:       string(summary.Status),
			SuccessCount: summary.SuccessCount,
			FailureCount: summary.FailureCount,
		}, nil
	}
}

func closeLogged(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Error().Err(err).Str("resource", name).Msg("error closing resource")
	}
}
