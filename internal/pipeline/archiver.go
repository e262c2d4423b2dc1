package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotFlusher uploads buffered hourly snapshots.
type SnapshotFlusher interface {
	FlushBefore(ctx context.Context, cutoff time.Time) (int, error)
	FlushAll(ctx context.Context) (int, error)
}

// Archiver flushes closed snapshot hours on a cron schedule and everything
// left on shutdown.
type Archiver struct {
	flusher  SnapshotFlusher
	schedule Schedule
	logger   *slog.Logger
	now      func() time.Time
}

func NewArchiver(flusher SnapshotFlusher, schedule Schedule, logger *slog.Logger) *Archiver {
	return &Archiver{
		flusher:  flusher,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// Run flushes on every schedule tick until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.String("cron", a.schedule.String()))
	for {
		next := a.schedule.Next(a.now())
		if next.IsZero() {
			a.logger.Warn("cron schedule never fires, archiver idle")
			<-ctx.Done()
			return a.shutdown()
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return a.shutdown()
		case <-timer.C:
			n, err := a.flusher.FlushBefore(ctx, a.now())
			if err != nil {
				a.logger.Error("snapshot flush failed", slog.String("error", err.Error()))
			}
			if n > 0 {
				a.logger.Info("snapshots flushed", slog.Int("hours", n))
			}
		}
	}
}

// shutdown uploads the open hours with a fresh deadline.
func (a *Archiver) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if n, err := a.flusher.FlushAll(ctx); err != nil {
		a.logger.Error("final snapshot flush failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.Info("final snapshots flushed", slog.Int("hours", n))
	}
	return context.Canceled
}
