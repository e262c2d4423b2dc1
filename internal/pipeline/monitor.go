// Package pipeline runs the background monitor: it evaluates every configured
// asset on an interval and fans profitable opportunities out to the signal
// bus, the history store, notifiers and the snapshot archive.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hourlyarb/internal/cache/memory"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/notify"
)

// Signal bus names.
const (
	HistoryStream = "arb:history"
	monitorLock   = "lock:monitor"
)

// ReportChannel is the pub/sub channel of an asset's reports.
func ReportChannel(asset string) string { return "arb:" + asset }

// AssetEvaluator evaluates the current window of an asset.
type AssetEvaluator interface {
	Assets() []domain.Asset
	Evaluate(ctx context.Context, a domain.Asset) domain.OpportunityReport
}

// SnapshotSink buffers reports for archiving.
type SnapshotSink interface {
	Add(r domain.OpportunityReport)
}

// MonitorDeps are the optional outputs of a Monitor. Nil fields are skipped.
type MonitorDeps struct {
	Bus      domain.SignalBus
	Store    domain.OpportunityStore
	Notifier *notify.Notifier
	Archive  SnapshotSink
	Locks    domain.LockManager
}

// Monitor evaluates every asset once per round.
type Monitor struct {
	svc      AssetEvaluator
	deps     MonitorDeps
	dedup    *memory.Dedup
	parallel int
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewMonitor creates a Monitor. parallel bounds concurrent evaluations.
func NewMonitor(svc AssetEvaluator, deps MonitorDeps, parallel int, logger *slog.Logger) *Monitor {
	if parallel <= 0 {
		parallel = 4
	}
	return &Monitor{
		svc:      svc,
		deps:     deps,
		dedup:    memory.NewDedup(2 * time.Hour),
		parallel: parallel,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// RunOnce evaluates all assets. When a lock manager is configured only one
// monitor instance runs a round at a time; a held lock skips the round.
func (m *Monitor) RunOnce(ctx context.Context, interval time.Duration) error {
	if m.deps.Locks != nil {
		unlock, err := m.deps.Locks.Acquire(ctx, monitorLock, interval)
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.DebugContext(ctx, "another monitor holds the lock, skipping round")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: acquire monitor lock: %w", err)
		}
		defer unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for _, a := range m.svc.Assets() {
		g.Go(func() error {
			m.handle(gctx, m.svc.Evaluate(gctx, a))
			return nil
		})
	}
	return g.Wait()
}

// RunLoop calls RunOnce every interval until ctx is done.
func (m *Monitor) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx, interval); err != nil {
			m.logger.ErrorContext(ctx, "monitor round failed", slog.String("error", err.Error()))
		}
		m.dedup.Cleanup()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-m.trigger:
			m.logger.InfoContext(ctx, "monitor round triggered")
		}
	}
}

// Trigger asks RunLoop to start a round now. It reports false when a trigger
// is already pending.
func (m *Monitor) Trigger() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Monitor) handle(ctx context.Context, r domain.OpportunityReport) {
	if m.deps.Archive != nil {
		m.deps.Archive.Add(r)
	}
	if m.deps.Bus != nil {
		if payload, err := json.Marshal(r); err == nil {
			if err := m.deps.Bus.Publish(ctx, ReportChannel(r.Asset), payload); err != nil {
				m.logger.WarnContext(ctx, "publish report failed",
					slog.String("asset", r.Asset),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if len(r.Errors) > 0 {
		m.logger.InfoContext(ctx, "report degraded",
			slog.String("asset", r.Asset),
			slog.Int("errors", len(r.Errors)),
		)
	}

	for _, opp := range r.Opportunities {
		if !opp.IsProfitable {
			// Sorted by margin, nothing after this is profitable.
			break
		}
		if m.dedup.IsDuplicate(opp.DedupKey()) {
			continue
		}
		m.record(ctx, opp)
	}
}

func (m *Monitor) record(ctx context.Context, opp domain.Opportunity) {
	log := m.logger.With(
		slog.String("asset", opp.Asset),
		slog.String("strategy", string(opp.Strategy)),
		slog.Float64("strike", opp.Strike),
		slog.Float64("net_margin_usd", opp.NetMarginUSD),
	)
	log.InfoContext(ctx, "profitable opportunity")

	if m.deps.Bus != nil {
		if payload, err := json.Marshal(opp); err == nil {
			if err := m.deps.Bus.StreamAppend(ctx, HistoryStream, payload); err != nil {
				log.WarnContext(ctx, "history append failed", slog.String("error", err.Error()))
			}
		}
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.Insert(ctx, opp); err != nil {
			log.WarnContext(ctx, "store insert failed", slog.String("error", err.Error()))
		}
	}
	if m.deps.Notifier.Enabled() {
		if err := m.deps.Notifier.Notify(ctx, notify.EventOpportunity, notify.OpportunityTitle(opp), notify.OpportunityMessage(opp)); err != nil {
			log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}
