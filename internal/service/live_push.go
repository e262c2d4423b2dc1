package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/platform/polymarket"
)

// BookStreamer streams top-of-book changes for CLOB tokens.
type BookStreamer interface {
	Stream(ctx context.Context, assetIDs []string, handler polymarket.TopOfBookHandler) error
}

// LivePush is the push producer of the live sync manager. It takes a full
// report, then re-evaluates it on every Polymarket top-of-book change and
// refreshes the Kalshi side periodically. The stream ends when the window
// closes so the next connection picks up the new hour.
type LivePush struct {
	svc     *OpportunityService
	books   BookStreamer
	refresh time.Duration
	logger  *slog.Logger
}

// NewLivePush creates a LivePush. refresh is the Kalshi refresh period.
func NewLivePush(svc *OpportunityService, books BookStreamer, refresh time.Duration, logger *slog.Logger) *LivePush {
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &LivePush{
		svc:     svc,
		books:   books,
		refresh: refresh,
		logger:  logger.With(slog.String("component", "live_push")),
	}
}

// Stream implements livesync.PushSource.
func (p *LivePush) Stream(ctx context.Context, symbol string, emit func(domain.OpportunityReport)) error {
	report, err := p.svc.GetOpportunities(ctx, symbol)
	if err != nil {
		return &domain.ChannelError{Channel: "polymarket_ws", Reason: domain.ErrRejected, Err: err}
	}
	emit(report)

	up, down := report.Polymarket.UpTokenID, report.Polymarket.DownTokenID
	if up == "" || down == "" {
		return &domain.ChannelError{
			Channel: "polymarket_ws",
			Reason:  domain.ErrDisconnected,
			Err:     fmt.Errorf("no token ids for %s", report.Polymarket.Slug),
		}
	}

	streamCtx, cancel := context.WithDeadline(ctx, report.Window.ClosesAt)
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		cur = report
	)
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
			}
			fresh, err := p.svc.GetOpportunities(streamCtx, symbol)
			if err != nil || streamCtx.Err() != nil {
				return
			}
			mu.Lock()
			if !fresh.Window.Equal(cur.Window) {
				mu.Unlock()
				cancel()
				return
			}
			// Keep the streamed Polymarket book, take the new Kalshi side.
			next := cur
			next.Kalshi = fresh.Kalshi
			next.Polymarket.PriceToBeat = fresh.Polymarket.PriceToBeat
			next.Errors = fresh.Errors
			next = p.svc.Reevaluate(next)
			cur = next
			mu.Unlock()
			emit(next)
		}
	}()

	handler := func(top polymarket.TopOfBook) {
		mu.Lock()
		next, ok := applyTop(cur, top)
		if ok {
			next = p.svc.Reevaluate(next)
			cur = next
		}
		mu.Unlock()
		if ok {
			emit(next)
		}
	}

	err = p.books.Stream(streamCtx, []string{up, down}, handler)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case streamCtx.Err() != nil:
		p.logger.InfoContext(ctx, "window rolled over", slog.String("asset", symbol))
		return &domain.ChannelError{Channel: "polymarket_ws", Reason: domain.ErrDisconnected, Err: errors.New("window closed")}
	default:
		return err
	}
}

// applyTop returns a copy of r with the quote of top's token replaced.
func applyTop(r domain.OpportunityReport, top polymarket.TopOfBook) (domain.OpportunityReport, bool) {
	var target **domain.Quote
	switch top.AssetID {
	case r.Polymarket.UpTokenID:
		target = &r.Polymarket.Up
	case r.Polymarket.DownTokenID:
		target = &r.Polymarket.Down
	default:
		return r, false
	}
	if *target == nil {
		return r, false
	}
	q := **target
	if q.Bid == top.BestBid && q.Ask == top.BestAsk {
		return r, false
	}
	q.Bid, q.Ask = top.BestBid, top.BestAsk
	q.At = time.Now()
	*target = &q
	return r, true
}
