// Package orchestrator dispatches scrape tasks across the query × platform
// matrix (C5): dedup probe, rate-limit admission with a 120s wait, and a
// per-platform concurrency cap of 3, fanned out with goroutines and
// collected over a buffered channel per spec.md §4.5/§5.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/levoit/visibilitypipeline/internal/content"
	"github.com/levoit/visibilitypipeline/internal/coordination"
	"github.com/levoit/visibilitypipeline/internal/metrics"
	"github.com/levoit/visibilitypipeline/internal/models"
)

// maxConcurrentPerPlatform bounds simultaneous in-flight scrapes against a
// single platform.
const maxConcurrentPerPlatform = 3

// rateLimitTimeout bounds how long a task waits for rate-limiter admission
// before it is counted as skipped.
const rateLimitTimeout = 120 * time.Second

// semaphorePaceRate paces entry to a per-platform semaphore: each task waits
// once on its platform's token bucket (this rate, burst 1) before acquiring
// the semaphore; distinct from and layered outside the coordination rate
// limiter's own admission control (§11 DOMAIN STACK).
const semaphorePaceRate = 20 // acquisitions/sec ceiling per platform

// Scraper is the capability orchestrator needs from internal/scraper.Client:
// scrape one query against the platform the Scraper instance is bound to.
type Scraper interface {
	Scrape(ctx context.Context, query string) (*content.Processed, error)
}

// ScrapeFailure records one failed (query, platform) task.
type ScrapeFailure struct {
	QueryID   string
	QueryText string
	Platform  models.Platform
	ErrorKind string
	ErrorDetail string
	Timestamp time.Time
}

// ScrapeSuccess pairs a completed scrape with the task it came from.
type ScrapeSuccess struct {
	QueryID   string
	Platform  models.Platform
	Brands    []string
	Processed *content.Processed
}

// Result aggregates one orchestrator run.
type Result struct {
	Successes        []ScrapeSuccess
	Failures         []ScrapeFailure
	SkippedDedup     int
	SkippedRateLimit int
}

// TotalTasks is the number of query × platform combinations attempted,
// including skips.
func (r Result) TotalTasks() int {
	return len(r.Successes) + len(r.Failures) + r.SkippedDedup + r.SkippedRateLimit
}

// task is one query × platform unit of work.
type task struct {
	queryID   string
	queryText string
	brands    []string
	platform  models.Platform
}

// Orchestrator wires the coordination primitives to a set of per-platform
// scraper clients and runs the query × platform matrix.
type Orchestrator struct {
	scrapers    map[models.Platform]Scraper
	rateLimiter *coordination.RateLimiter
	dedup       *coordination.Dedup
	pacers      map[models.Platform]*rate.Limiter
	pacersMu    sync.Mutex
}

// New builds an Orchestrator over scrapers keyed by platform tag.
func New(scrapers map[models.Platform]Scraper, rateLimiter *coordination.RateLimiter, dedup *coordination.Dedup) *Orchestrator {
	return &Orchestrator{
		scrapers:    scrapers,
		rateLimiter: rateLimiter,
		dedup:       dedup,
		pacers:      make(map[models.Platform]*rate.Limiter),
	}
}

func (o *Orchestrator) pacerFor(platform models.Platform) *rate.Limiter {
	o.pacersMu.Lock()
	defer o.pacersMu.Unlock()
	if p, ok := o.pacers[platform]; ok {
		return p
	}
	p := rate.NewLimiter(rate.Limit(semaphorePaceRate), 1)
	o.pacers[platform] = p
	return p
}

// Query is the minimal shape orchestrator needs from models.Query.
type Query struct {
	ID     string
	Text   string
	Brands []string
}

// Run expands queries × platforms into tasks and executes them concurrently,
// bounded per-platform by a semaphore of maxConcurrentPerPlatform. Context
// cancellation propagates to every suspension point: the rate-limiter wait,
// the semaphore pace delay, and the scrape call itself.
func (o *Orchestrator) Run(ctx context.Context, queries []Query, platforms []models.Platform) Result {
	var tasks []task
	for _, q := range queries {
		for _, p := range platforms {
			if _, ok := o.scrapers[p]; !ok {
				continue
			}
			tasks = append(tasks, task{queryID: q.ID, queryText: q.Text, brands: q.Brands, platform: p})
		}
	}

	semaphores := make(map[models.Platform]chan struct{})
	for _, p := range platforms {
		semaphores[p] = make(chan struct{}, maxConcurrentPerPlatform)
	}

	resultsCh := make(chan taskOutcome, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			resultsCh <- o.executeTask(ctx, t, semaphores[t.platform])
		}(t)
	}
	wg.Wait()
	close(resultsCh)

	var result Result
	for outcome := range resultsCh {
		switch {
		case outcome.dedupSkip:
			result.SkippedDedup++
		case outcome.rateLimitSkip:
			result.SkippedRateLimit++
		case outcome.failure != nil:
			result.Failures = append(result.Failures, *outcome.failure)
		case outcome.success != nil:
			result.Successes = append(result.Successes, *outcome.success)
		}
	}
	return result
}

type taskOutcome struct {
	dedupSkip     bool
	rateLimitSkip bool
	success       *ScrapeSuccess
	failure       *ScrapeFailure
}

func (o *Orchestrator) executeTask(ctx context.Context, t task, semaphore chan struct{}) taskOutcome {
	tag := string(t.platform)

	seen, err := o.dedup.Seen(t.queryID, t.platform)
	if err != nil {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "dedup_probe_error", ErrorDetail: err.Error(), Timestamp: time.Now().UTC(),
		}}
	}
	if seen {
		metrics.RecordDedupSkip(tag)
		return taskOutcome{dedupSkip: true}
	}

	acquired, err := o.rateLimiter.WaitAndAcquire(ctx, t.platform, rateLimitTimeout, 500*time.Millisecond)
	if err != nil {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "rate_limiter_error", ErrorDetail: err.Error(), Timestamp: time.Now().UTC(),
		}}
	}
	if !acquired {
		metrics.RecordRateLimitSkip(tag)
		return taskOutcome{rateLimitSkip: true}
	}

	pacer := o.pacerFor(t.platform)
	if err := pacer.Wait(ctx); err != nil {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "context_canceled", ErrorDetail: err.Error(), Timestamp: time.Now().UTC(),
		}}
	}

	select {
	case semaphore <- struct{}{}:
	case <-ctx.Done():
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "context_canceled", ErrorDetail: ctx.Err().Error(), Timestamp: time.Now().UTC(),
		}}
	}
	defer func() { <-semaphore }()

	scraper, ok := o.scrapers[t.platform]
	if !ok {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "no_scraper_configured", ErrorDetail: "no scraper registered for platform", Timestamp: time.Now().UTC(),
		}}
	}

	processed, err := scraper.Scrape(ctx, t.queryText)
	if err != nil {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: errorKind(err), ErrorDetail: truncate(err.Error(), 500), Timestamp: time.Now().UTC(),
		}}
	}

	if err := o.dedup.MarkSeen(t.queryID, t.platform); err != nil {
		return taskOutcome{failure: &ScrapeFailure{
			QueryID: t.queryID, QueryText: t.queryText, Platform: t.platform,
			ErrorKind: "dedup_mark_error", ErrorDetail: err.Error(), Timestamp: time.Now().UTC(),
		}}
	}

	return taskOutcome{success: &ScrapeSuccess{
		QueryID: t.queryID, Platform: t.platform, Brands: t.brands, Processed: processed,
	}}
}

func errorKind(err error) string {
	var qErr *content.QuarantineError
	if errors.As(err, &qErr) {
		return "quarantine:" + qErr.Kind
	}
	return "transient"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
