package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
)

type fakeEvaluator struct {
	assets  []domain.Asset
	reports map[string]domain.OpportunityReport
}

func (f *fakeEvaluator) Assets() []domain.Asset { return f.assets }

func (f *fakeEvaluator) Evaluate(_ context.Context, a domain.Asset) domain.OpportunityReport {
	return f.reports[a.Symbol]
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string]int
	stream    []domain.StreamMessage
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string]int)
	}
	b.published[channel]++
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, domain.StreamMessage{ID: time.Now().String(), Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.stream) > count {
		return b.stream[:count], nil
	}
	return b.stream, nil
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []domain.Opportunity
}

func (s *fakeStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, opp)
	return nil
}

func (s *fakeStore) ListRecent(context.Context, string, int) ([]domain.Opportunity, error) {
	return s.inserted, nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type archiveRecorder struct {
	mu      sync.Mutex
	reports int
}

func (a *archiveRecorder) Add(domain.OpportunityReport) {
	a.mu.Lock()
	a.reports++
	a.mu.Unlock()
}

func monitorFixture() *fakeEvaluator {
	opens := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	w := domain.MarketWindow{Asset: "BTC", OpensAt: opens, ClosesAt: opens.Add(time.Hour)}
	opp := func(id string, profitable bool, margin float64) domain.Opportunity {
		return domain.Opportunity{
			ID:           id,
			Asset:        "BTC",
			Window:       w,
			Strategy:     domain.StrategyKalshiYesPolyDown,
			LegA:         domain.Leg{Identifier: "KXBTCD-" + id},
			NetMargin:    margin,
			IsProfitable: profitable,
		}
	}
	return &fakeEvaluator{
		assets: []domain.Asset{{Symbol: "BTC"}, {Symbol: "ETH"}},
		reports: map[string]domain.OpportunityReport{
			"BTC": {Asset: "BTC", Window: w, Opportunities: []domain.Opportunity{
				opp("a", true, 0.02),
				opp("b", true, 0.01),
				opp("c", false, -0.01),
			}},
			"ETH": {Asset: "ETH", Window: w},
		},
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMonitorRecordsProfitableOncePerWindow(t *testing.T) {
	bus := &fakeBus{}
	store := &fakeStore{}
	archive := &archiveRecorder{}
	m := NewMonitor(monitorFixture(), MonitorDeps{Bus: bus, Store: store, Archive: archive}, 2, discardLogger())

	for i := 0; i < 3; i++ {
		if err := m.RunOnce(context.Background(), time.Second); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}

	if len(store.inserted) != 2 {
		t.Fatalf("inserted = %d, want the 2 profitable hedges once", len(store.inserted))
	}
	if len(bus.stream) != 2 {
		t.Fatalf("history entries = %d, want 2", len(bus.stream))
	}
	if bus.published["arb:BTC"] != 3 || bus.published["arb:ETH"] != 3 {
		t.Fatalf("published = %v, want every report on its channel", bus.published)
	}
	if archive.reports != 6 {
		t.Fatalf("archived = %d, want 6", archive.reports)
	}
}

func TestMonitorSkipsRoundWhenLockHeld(t *testing.T) {
	store := &fakeStore{}
	m := NewMonitor(monitorFixture(), MonitorDeps{Store: store, Locks: heldLock{}}, 1, discardLogger())
	if err := m.RunOnce(context.Background(), time.Second); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("inserted = %d while lock held", len(store.inserted))
	}
}

func TestHistoryFromStreamNewestFirst(t *testing.T) {
	bus := &fakeBus{}
	for _, o := range []domain.Opportunity{{ID: "1", Asset: "BTC"}, {ID: "2", Asset: "ETH"}, {ID: "3", Asset: "BTC"}} {
		b, _ := json.Marshal(o)
		bus.StreamAppend(context.Background(), HistoryStream, b)
	}

	got, err := NewHistory(nil, bus).ListRecent(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("got %+v, want BTC entries 3 then 1", got)
	}
}

func TestHistoryPrefersStore(t *testing.T) {
	store := &fakeStore{inserted: []domain.Opportunity{{ID: "db"}}}
	got, err := NewHistory(store, &fakeBus{}).ListRecent(context.Background(), "", 5)
	if err != nil || len(got) != 1 || got[0].ID != "db" {
		t.Fatalf("got %+v err %v", got, err)
	}
}
