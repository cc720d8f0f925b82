// Package metrics provides Prometheus instrumentation for the visibility
// pipeline: scrape attempts and outcomes, rate-limit and dedup skips,
// quarantines, circuit breaker transitions, and per-flow run duration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scraper Metrics
	ScrapeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_attempts_total",
			Help: "Total number of scrape attempts by platform and outcome",
		},
		[]string{"platform", "outcome"}, // outcome: "success", "transient_error", "quarantined"
	)

	ScrapeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_retries_total",
			Help: "Total number of scrape retry attempts by platform",
		},
		[]string{"platform"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_duration_seconds",
			Help:    "Duration of a single scrape call, including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"platform"},
	)

	QuarantinedContentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantined_content_total",
			Help: "Total number of scraped pages quarantined by reason",
		},
		[]string{"platform", "reason"},
	)

	// Coordination Metrics
	RateLimitSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_skips_total",
			Help: "Total number of scrape tasks skipped due to rate limit exhaustion",
		},
		[]string{"platform"},
	)

	DedupSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_skips_total",
			Help: "Total number of scrape tasks skipped due to recent duplicate scrapes",
		},
		[]string{"platform"},
	)

	CostBudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cost_budget_remaining_usd",
			Help: "Remaining daily scrape cost budget in USD",
		},
	)

	CostHaltsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cost_halts_total",
			Help: "Total number of pipeline runs halted early due to budget exhaustion",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_circuit_breaker_state",
			Help: "Circuit breaker state per platform (0=closed, 1=half-open, 2=open)",
		},
		[]string{"platform"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"platform", "from_state", "to_state"},
	)

	// Pipeline Run Metrics
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of a full hourly or daily pipeline run",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"flow"}, // "hourly_rank_check", "daily_full_scan"
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs by flow and final status",
		},
		[]string{"flow", "status"}, // status: "completed", "failed", "cost-halted"
	)

	PipelineQueriesProcessed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_queries_processed",
			Help:    "Number of active queries processed in a single run",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"flow"},
	)

	ScoresComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scores_computed_total",
			Help: "Total number of visibility scores computed",
		},
		[]string{"flow"},
	)
)

// RecordScrapeAttempt records the terminal outcome of a scrape call.
func RecordScrapeAttempt(platform, outcome string, duration time.Duration) {
	ScrapeAttemptsTotal.WithLabelValues(platform, outcome).Inc()
	ScrapeDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordScrapeRetry records one retry attempt within the scraper's retry
// table, not the final outcome.
func RecordScrapeRetry(platform string) {
	ScrapeRetriesTotal.WithLabelValues(platform).Inc()
}

// RecordQuarantine records a scraped page routed to quarantine.
func RecordQuarantine(platform, reason string) {
	QuarantinedContentTotal.WithLabelValues(platform, reason).Inc()
}

// RecordRateLimitSkip records a task the orchestrator dropped because the
// platform's hourly admission cap was exhausted.
func RecordRateLimitSkip(platform string) {
	RateLimitSkipsTotal.WithLabelValues(platform).Inc()
}

// RecordDedupSkip records a task the orchestrator dropped as a recent
// duplicate of an already-scraped query/platform pair.
func RecordDedupSkip(platform string) {
	DedupSkipsTotal.WithLabelValues(platform).Inc()
}

// SetCostBudgetRemaining updates the remaining-daily-budget gauge.
func SetCostBudgetRemaining(remaining float64) {
	CostBudgetRemaining.Set(remaining)
}

// RecordCostHalt records a run that stopped early on budget exhaustion.
func RecordCostHalt() {
	CostHaltsTotal.Inc()
}

// RecordCircuitBreakerTransition records a state change and updates the
// current-state gauge.
func RecordCircuitBreakerTransition(platform, from, to string, toValue float64) {
	CircuitBreakerTransitions.WithLabelValues(platform, from, to).Inc()
	CircuitBreakerState.WithLabelValues(platform).Set(toValue)
}

// RecordPipelineRun records a completed run's duration, terminal status, and
// the number of queries it processed.
func RecordPipelineRun(flow, status string, duration time.Duration, queryCount int) {
	PipelineRunDuration.WithLabelValues(flow).Observe(duration.Seconds())
	PipelineRunsTotal.WithLabelValues(flow, status).Inc()
	PipelineQueriesProcessed.WithLabelValues(flow).Observe(float64(queryCount))
}

// RecordScoresComputed records the number of visibility scores computed in
// a single run.
func RecordScoresComputed(flow string, count int) {
	ScoresComputedTotal.WithLabelValues(flow).Add(float64(count))
}
