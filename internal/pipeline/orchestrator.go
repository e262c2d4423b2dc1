package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the monitor loop and, when archiving is enabled, the
// snapshot archiver.
type Orchestrator struct {
	monitor  *Monitor
	archiver *Archiver
	interval time.Duration
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(monitor *Monitor, archiver *Archiver, interval time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		monitor:  monitor,
		archiver: archiver,
		interval: interval,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is done or a loop fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("monitor starting",
		slog.Duration("interval", o.interval),
		slog.Bool("archive", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := o.monitor.RunLoop(ctx, o.interval)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor loop: %w", err)
	})
	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.Run(ctx)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}
	return g.Wait()
}
