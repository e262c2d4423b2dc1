package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/cache/memory"
	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/platform/kalshi"
)

type fakeLister struct {
	calls      atomic.Int32
	candidates []domain.DiscoveryCandidate
	err        error
	gate       chan struct{}
	keys       chan string
	ctxErrs    chan error
}

func (f *fakeLister) ListCandidates(ctx context.Context, eventKey string) ([]domain.DiscoveryCandidate, error) {
	f.calls.Add(1)
	if f.keys != nil {
		f.keys <- eventKey
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			if f.ctxErrs != nil {
				f.ctxErrs <- ctx.Err()
			}
			return nil, ctx.Err()
		}
	}
	return f.candidates, f.err
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveKalshiDiscoversSingleMatch(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)
	lister := &fakeLister{candidates: []domain.DiscoveryCandidate{
		{Identifier: "KXBTCD-26JAN0916", ClosesAt: w.OpensAt},
		{Identifier: "KXBTCD-26JAN0917", ClosesAt: w.ClosesAt},
		{Identifier: "KXBTCD-26JAN0918", ClosesAt: w.ClosesAt.Add(time.Hour)},
	}}
	r := New(lister, memory.NewDiscoveryCache(), time.Minute, testLogger())

	id, err := r.Resolve(context.Background(), domain.VenueKalshi, btc(), w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Identifier != "KXBTCD-26JAN0917" || !id.Discovered {
		t.Errorf("identifier = %+v", id)
	}
	if id.URL != "https://kalshi.com/markets/kxbtcd/bitcoin-price-abovebelow/kxbtcd-26jan0917" {
		t.Errorf("url = %q", id.URL)
	}
}

func TestResolveKalshiNotFoundAndAmbiguous(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)

	tests := []struct {
		name       string
		candidates []domain.DiscoveryCandidate
		want       error
	}{
		{
			name:       "no candidate closes in window",
			candidates: []domain.DiscoveryCandidate{{Identifier: "A", ClosesAt: w.OpensAt}},
			want:       domain.ErrNotFound,
		},
		{
			name: "two candidates close in window",
			candidates: []domain.DiscoveryCandidate{
				{Identifier: "A", ClosesAt: w.ClosesAt},
				{Identifier: "B", ClosesAt: w.ClosesAt.Add(10 * time.Minute)},
			},
			want: domain.ErrAmbiguous,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(&fakeLister{candidates: tc.candidates}, memory.NewDiscoveryCache(), time.Minute, testLogger())
			_, err := r.ResolveKalshi(context.Background(), btc(), w)

			var resErr *domain.ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("err = %v, want *domain.ResolutionError", err)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want reason %v", err, tc.want)
			}
		})
	}
}

func TestResolveKalshiUpstreamFailure(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)
	r := New(&fakeLister{err: domain.ErrTimeout}, memory.NewDiscoveryCache(), time.Minute, testLogger())

	_, err := r.ResolveKalshi(context.Background(), btc(), w)
	if !errors.Is(err, domain.ErrUpstream) || !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want upstream wrapping timeout", err)
	}
}

func TestDiscoveryRunsOncePerTTL(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)
	lister := &fakeLister{candidates: []domain.DiscoveryCandidate{{Identifier: "KXBTCD-26JAN0917", ClosesAt: w.ClosesAt}}}
	r := New(lister, memory.NewDiscoveryCache(), 5*time.Minute, testLogger())

	for i := 0; i < 10; i++ {
		if _, err := r.ResolveKalshi(context.Background(), btc(), w); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("lister called %d times, want 1", n)
	}
}

func TestConcurrentResolutionsShareOneQuery(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)
	lister := &fakeLister{
		candidates: []domain.DiscoveryCandidate{{Identifier: "KXBTCD-26JAN0917", ClosesAt: w.ClosesAt}},
		gate:       make(chan struct{}),
		keys:       make(chan string, 16),
	}
	r := New(lister, memory.NewDiscoveryCache(), 5*time.Minute, testLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.ResolveKalshi(context.Background(), btc(), w)
			errs <- err
		}()
	}

	if key := <-lister.keys; key != "KXBTCD-26JAN09" {
		t.Errorf("event key = %q", key)
	}
	// Let the other goroutines pile up on the in-flight query.
	time.Sleep(50 * time.Millisecond)
	close(lister.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Resolve: %v", err)
		}
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("lister called %d times, want 1", n)
	}
}

func TestCancelledCallerDoesNotFailSharedQuery(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 16)
	lister := &fakeLister{
		candidates: []domain.DiscoveryCandidate{{Identifier: "KXBTCD-26JAN0917", ClosesAt: w.ClosesAt}},
		gate:       make(chan struct{}),
		keys:       make(chan string, 1),
		ctxErrs:    make(chan error, 1),
	}
	r := New(lister, memory.NewDiscoveryCache(), 5*time.Minute, testLogger())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.ResolveKalshi(firstCtx, btc(), w)
		first <- err
	}()
	<-lister.keys

	second := make(chan error, 1)
	go func() {
		_, err := r.ResolveKalshi(context.Background(), btc(), w)
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller err = %v, want its own cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting on the shared query")
	}

	close(lister.gate)
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second caller err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	select {
	case err := <-lister.ctxErrs:
		t.Fatalf("shared listing was cancelled: %v", err)
	default:
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("lister called %d times, want 1", n)
	}
}

func TestResolvePolymarketIsGenerated(t *testing.T) {
	w := windowAt(t, 2026, time.January, 9, 20)
	r := New(&fakeLister{}, memory.NewDiscoveryCache(), time.Minute, testLogger())

	id, err := r.Resolve(context.Background(), domain.VenuePolymarket, btc(), w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Identifier != "bitcoin-up-or-down-january-9-8pm-et" || id.Discovered {
		t.Errorf("identifier = %+v", id)
	}
	if id.URL != "https://polymarket.com/event/bitcoin-up-or-down-january-9-8pm-et" {
		t.Errorf("url = %q", id.URL)
	}
}

type fakeMarkets []kalshi.Market

func (f fakeMarkets) GetMarketsByEvent(context.Context, string) ([]kalshi.Market, error) {
	return f, nil
}

func TestKalshiListerDedupesEvents(t *testing.T) {
	l := NewKalshiLister(fakeMarkets{
		{Ticker: "KXBTCD-26JAN0917-T1", EventTicker: "KXBTCD-26JAN0917", CloseTime: "2026-01-09T22:00:00Z"},
		{Ticker: "KXBTCD-26JAN0917-T2", EventTicker: "KXBTCD-26JAN0917", CloseTime: "2026-01-09T22:00:00Z"},
		{Ticker: "KXBTCD-26JAN0918-T1", EventTicker: "KXBTCD-26JAN0918", CloseTime: "2026-01-09T23:00:00Z"},
		{Ticker: "broken", EventTicker: "X", CloseTime: "not a time"},
	})

	got, err := l.ListCandidates(context.Background(), "KXBTCD-26JAN09")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 2 || got[0].Identifier != "KXBTCD-26JAN0917" || got[1].Identifier != "KXBTCD-26JAN0918" {
		t.Errorf("candidates = %+v", got)
	}
}
