// Package supervisor builds the suture supervisor tree that schedules the
// visibility pipeline's recurring flows.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults.
// These values match suture's built-in defaults per pkg.go.dev documentation.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree manages the hierarchical supervisor structure for the
// visibility pipeline.
//
// The tree has two layers:
//   - scheduler: ticker-driven flow runners (hourly rank check, daily full
//     scan)
//   - maintenance: background upkeep services; cmd/visibilitypipeline
//     registers none (the daily rollup runs inside the daily flow)
//
// This structure provides failure isolation: a panic in a flow runner does
// not take down maintenance work, and vice versa.
type SupervisorTree struct {
	root        *suture.Supervisor
	scheduler   *suture.Supervisor
	maintenance *suture.Supervisor
	logger      *slog.Logger
	config      TreeConfig
}

// NewSupervisorTree creates a new supervisor tree with the given configuration.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// IMPORTANT: the correct API is (&Handler{Logger: logger}).MustHook(),
	// not sutureslog.EventHook(logger), which does not exist. MustHook has
	// a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("visibility-pipeline", rootSpec)
	scheduler := suture.New("scheduler-layer", childSpec)
	maintenance := suture.New("maintenance-layer", childSpec)

	root.Add(scheduler)
	root.Add(maintenance)

	return &SupervisorTree{
		root:        root,
		scheduler:   scheduler,
		maintenance: maintenance,
		logger:      logger,
		config:      config,
	}, nil
}

// Root returns the root supervisor for direct access if needed.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddSchedulerService adds a service to the scheduler layer supervisor.
// Use this for the hourly and daily flow runners.
func (t *SupervisorTree) AddSchedulerService(svc suture.Service) suture.ServiceToken {
	return t.scheduler.Add(svc)
}

// AddMaintenanceService adds a service to the maintenance layer supervisor.
// Use this for background upkeep that runs beside the flow runners.
func (t *SupervisorTree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// Serve starts the supervisor tree and blocks until the context is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine.
// Returns a channel that receives the error (or nil) when the supervisor stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns information about services that failed to stop
// within the configured shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove removes a service from the tree by its token.
func (t *SupervisorTree) Remove(token suture.ServiceToken) error {
	return t.onOwningLayer(func(s *suture.Supervisor) error { return s.Remove(token) })
}

// RemoveAndWait removes a service and waits for it to fully stop.
func (t *SupervisorTree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.onOwningLayer(func(s *suture.Supervisor) error { return s.RemoveAndWait(token, timeout) })
}

// onOwningLayer applies op to the scheduler, maintenance, and root
// supervisors in turn, stopping at the first one that issued the token.
func (t *SupervisorTree) onOwningLayer(op func(*suture.Supervisor) error) error {
	err := suture.ErrWrongSupervisor
	for _, s := range []*suture.Supervisor{t.scheduler, t.maintenance, t.root} {
		if err = op(s); !errors.Is(err, suture.ErrWrongSupervisor) {
			return err
		}
	}
	return err
}
