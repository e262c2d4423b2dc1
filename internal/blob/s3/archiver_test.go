package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[path] = b
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func reportAt(asset string, opens time.Time) domain.OpportunityReport {
	return domain.OpportunityReport{
		Asset:       asset,
		Window:      domain.MarketWindow{Asset: asset, OpensAt: opens, ClosesAt: opens.Add(time.Hour)},
		GeneratedAt: opens.Add(time.Minute),
	}
}

func TestSnapshotPath(t *testing.T) {
	opens := time.Date(2025, 3, 10, 14, 0, 0, 0, window.Eastern())
	if got := SnapshotPath("", "BTC", opens.UTC()); got != "snapshots/BTC/2025/03/10/14.json" {
		t.Fatalf("path = %q", got)
	}
	if got := SnapshotPath("prod/", "ETH", opens); got != "prod/snapshots/ETH/2025/03/10/14.json" {
		t.Fatalf("path = %q", got)
	}
}

func TestFlushBeforeUploadsClosedHoursOnly(t *testing.T) {
	w := &memWriter{}
	a := NewSnapshotArchiver(w, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	h14 := time.Date(2025, 3, 10, 14, 0, 0, 0, window.Eastern())
	h15 := h14.Add(time.Hour)
	a.Add(reportAt("BTC", h14))
	a.Add(reportAt("BTC", h14))
	a.Add(reportAt("BTC", h15))

	n, err := a.FlushBefore(context.Background(), h15.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("FlushBefore: %v", err)
	}
	if n != 1 || a.Pending() != 1 {
		t.Fatalf("written = %d pending = %d, want 1 and 1", n, a.Pending())
	}

	var got []domain.OpportunityReport
	if err := json.Unmarshal(w.objects["snapshots/BTC/2025/03/10/14.json"], &got); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("snapshot has %d reports, want 2", len(got))
	}
}

func TestFlushKeepsFailedHours(t *testing.T) {
	w := &memWriter{fail: true}
	a := NewSnapshotArchiver(w, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.Add(reportAt("SOL", time.Date(2025, 3, 10, 14, 0, 0, 0, window.Eastern())))

	if _, err := a.FlushAll(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if a.Pending() != 1 {
		t.Fatalf("pending = %d, want failed hour kept", a.Pending())
	}

	w.fail = false
	if n, err := a.FlushAll(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}
