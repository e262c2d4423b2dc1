package feed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/livesync"
)

// Watcher is the headless consumer of watch mode: it runs a livesync.Manager
// over a remote feed and logs every delivered report.
type Watcher struct {
	push   livesync.PushSource
	poll   livesync.PollSource
	cfg    livesync.Config
	logger *slog.Logger

	// OnReport, when set, also receives each delivered report. It is called
	// with the manager lock held.
	OnReport func(domain.OpportunityReport)
}

// NewWatcher creates a Watcher. Either source may be nil.
func NewWatcher(push livesync.PushSource, poll livesync.PollSource, cfg livesync.Config, logger *slog.Logger) *Watcher {
	return &Watcher{
		push:   push,
		poll:   poll,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "watcher")),
	}
}

// Run watches asset until ctx is done.
func (w *Watcher) Run(ctx context.Context, asset string) error {
	mgr := livesync.NewManager(w.push, w.poll, w, w.cfg, w.logger)
	defer mgr.Close()

	mgr.Activate(ctx, strings.ToUpper(asset))
	w.logger.Info("watch started", slog.String("asset", strings.ToUpper(asset)))
	<-ctx.Done()
	w.logger.Info("watch stopped")
	return ctx.Err()
}

// Clear implements livesync.Sink.
func (w *Watcher) Clear(asset string) {
	w.logger.Debug("view cleared", slog.String("asset", asset))
}

// Deliver implements livesync.Sink.
func (w *Watcher) Deliver(u livesync.Update) {
	if u.Err != nil {
		w.logger.Warn("feed error",
			slog.String("asset", u.Token.Asset),
			slog.String("channel", string(u.Channel)),
			slog.String("error", u.Err.Error()),
		)
		return
	}
	r := u.Report
	attrs := []any{
		slog.String("asset", r.Asset),
		slog.String("channel", string(u.Channel)),
		slog.Time("window_closes", r.Window.ClosesAt),
		slog.Int("opportunities", len(r.Opportunities)),
		slog.Int("errors", len(r.Errors)),
	}
	if best, ok := r.Best(); ok {
		attrs = append(attrs,
			slog.String("best_strategy", string(best.Strategy)),
			slog.Float64("best_net_margin", best.NetMargin),
			slog.Float64("best_net_usd", best.NetMarginUSD),
			slog.Bool("profitable", best.IsProfitable),
		)
	}
	w.logger.Info("report", attrs...)
	if w.OnReport != nil {
		w.OnReport(r)
	}
}
