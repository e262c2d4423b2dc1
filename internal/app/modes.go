package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hourlyarb/internal/feed"
	"github.com/alanyoungcy/hourlyarb/internal/livesync"
	"github.com/alanyoungcy/hourlyarb/internal/pipeline"
	"github.com/alanyoungcy/hourlyarb/internal/server"
	"github.com/alanyoungcy/hourlyarb/internal/server/handler"
	"github.com/alanyoungcy/hourlyarb/internal/server/ws"
	"github.com/alanyoungcy/hourlyarb/internal/service"
)

// janitorInterval is how often in-process caches are swept.
const janitorInterval = time.Minute

// ServerMode serves the HTTP API and the live push feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startJanitors(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// MonitorMode evaluates every asset on a fixed interval and records the
// results.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startJanitors(ctx, g, deps)
	orch, _, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}
	g.Go(func() error { return orch.Run(ctx) })
	return g.Wait()
}

// FullMode runs the monitor and the HTTP API in one process. The API can
// trigger monitor rounds and read their history.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startJanitors(ctx, g, deps)
	orch, monitor, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}
	g.Go(func() error { return orch.Run(ctx) })
	a.startHTTPServer(ctx, g, deps, monitor)
	return g.Wait()
}

// WatchMode follows one asset on a remote hourlyarb server and logs every
// report it receives.
func (a *App) WatchMode(ctx context.Context) error {
	wc := a.cfg.Watch
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.String("server", wc.ServerURL),
		slog.String("asset", wc.Asset),
	)

	push, err := feed.NewRemoteFeed(wc.ServerURL, wc.APIKey, a.logger)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	poll := feed.NewRemotePoller(wc.ServerURL, wc.APIKey, a.cfg.HTTP.Timeout.Duration)
	w := feed.NewWatcher(push, poll, a.liveSyncConfig(), a.logger)

	err = w.Run(ctx, wc.Asset)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) liveSyncConfig() livesync.Config {
	ls := a.cfg.LiveSync
	return livesync.Config{
		PollInterval: ls.PollInterval.Duration,
		Lateness:     ls.Lateness.Duration,
		BackoffMin:   ls.BackoffMin.Duration,
		BackoffMax:   ls.BackoffMax.Duration,
	}
}

// buildOrchestrator wires the monitor to whichever outputs are enabled.
func (a *App) buildOrchestrator(deps *Dependencies) (*pipeline.Orchestrator, *pipeline.Monitor, error) {
	mdeps := pipeline.MonitorDeps{
		Bus:      deps.SignalBus,
		Store:    deps.OpportunityStore,
		Notifier: deps.Notifier,
	}
	if a.cfg.Monitor.UseLock {
		mdeps.Locks = deps.LockManager
	}

	var archiver *pipeline.Archiver
	if deps.Archive != nil {
		mdeps.Archive = deps.Archive
		sched, err := a.cfg.FlushSchedule()
		if err != nil {
			return nil, nil, fmt.Errorf("app: s3 flush schedule: %w", err)
		}
		archiver = pipeline.NewArchiver(deps.Archive, sched, a.logger)
	}

	monitor := pipeline.NewMonitor(deps.Service, mdeps, a.cfg.Monitor.Parallel, a.logger)
	orch := pipeline.NewOrchestrator(monitor, archiver, a.cfg.Monitor.Interval.Duration, a.logger)
	return orch, monitor, nil
}

// startJanitors periodically sweeps in-process caches.
func (a *App) startJanitors(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if len(deps.Janitors) == 0 {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, sweep := range deps.Janitors {
					sweep()
				}
			}
		}
	})
}

// startHTTPServer registers the API and the /ws/arbitrage hub. monitor may be
// nil, in which case no trigger endpoint is served.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, monitor *pipeline.Monitor) {
	svc := deps.Service

	var push livesync.PushSource
	switch a.cfg.Server.PushSource {
	case "bus":
		push = pipeline.NewBusFeed(deps.SignalBus)
	default:
		push = service.NewLivePush(svc, deps.Books, a.cfg.LiveSync.KalshiRefresh.Duration, a.logger)
	}
	hub := ws.NewHub(push, svc, svc, a.liveSyncConfig(), a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	arb := handler.NewArbHandler(svc, a.logger).
		WithHistory(pipeline.NewHistory(deps.OpportunityStore, deps.SignalBus))

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, svc, hub),
		Assets: handler.NewAssetHandler(svc, a.logger),
		Arb:    arb,
	}
	if monitor != nil {
		handlers.Monitor = handler.NewMonitorHandler(monitor, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
