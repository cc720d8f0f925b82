// Package scheduler wraps the pipeline driver's two flows as
// ticker-driven suture services, adapted from the teacher's
// Start/Stop-to-Serve lifecycle wrapper for its sync manager. This is the
// ambient scheduling piece spec.md §6 leaves external (a Prefect scheduler
// in the original system) and SPEC_FULL.md §9 specifies for a standalone
// Go binary.
package scheduler

import (
	"context"
	"time"

	"github.com/levoit/visibilitypipeline/internal/logging"
)

// FlowFunc is the shape of Driver.RunHourly / Driver.RunDaily.
type FlowFunc func(ctx context.Context) (RunSummary, error)

// RunSummary mirrors pipeline.RunSummary's fields the scheduler logs;
// kept as a narrow local type so this package does not import
// internal/pipeline just to log a handful of fields.
type RunSummary struct {
	RunID        string
	Status       string
	SuccessCount int
	FailureCount int
}

// FlowRunner wakes on a fixed interval and invokes a pipeline flow,
// implementing suture.Service (Serve(ctx) error, String() string).
// Overlap prevention lives in the driver itself (a mutex-guarded
// in-progress flag per flow), so the runner does not need its own "already
// running" guard. The runner calls the flow synchronously, so a slow run
// delays its own next tick rather than overlapping it; a run the driver
// rejects because the same flow is already in progress is logged and the
// runner continues past it.
type FlowRunner struct {
	name     string
	interval time.Duration
	run      FlowFunc
}

// NewFlowRunner builds a FlowRunner that calls run every interval.
func NewFlowRunner(name string, interval time.Duration, run FlowFunc) *FlowRunner {
	return &FlowRunner{name: name, interval: interval, run: run}
}

// Serve implements suture.Service: it fires once immediately (a cron-style
// scheduler would otherwise wait a full interval before the first run) and
// then on every tick until ctx is canceled.
func (f *FlowRunner) Serve(ctx context.Context) error {
	f.tick(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *FlowRunner) tick(ctx context.Context) {
	summary, err := f.run(ctx)
	if err != nil {
		logging.Error().Str("flow", f.name).Err(err).Msg("pipeline flow run failed")
		return
	}
	logging.Info().
		Str("flow", f.name).
		Str("run_id", summary.RunID).
		Str("status", summary.Status).
		Int("successes", summary.SuccessCount).
		Int("failures", summary.FailureCount).
		Msg("pipeline flow run completed")
}

// String implements fmt.Stringer for suture's logging.
func (f *FlowRunner) String() string {
	return f.name
}
