package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hourlyarb/internal/domain"
	"github.com/alanyoungcy/hourlyarb/internal/window"
)

type snapshotKey struct {
	asset string
	hour  int64
}

// SnapshotArchiver buffers opportunity reports per (asset, window hour) and
// uploads each hour as one JSON document once the hour has closed.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[snapshotKey][]domain.OpportunityReport
}

// NewSnapshotArchiver creates an archiver writing under prefix.
func NewSnapshotArchiver(writer domain.BlobWriter, prefix string, logger *slog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer:  writer,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "snapshot_archiver")),
		buckets: make(map[snapshotKey][]domain.OpportunityReport),
	}
}

// Add buffers a report under its window's opening hour.
func (a *SnapshotArchiver) Add(r domain.OpportunityReport) {
	if r.Window.OpensAt.IsZero() {
		return
	}
	k := snapshotKey{asset: r.Asset, hour: r.Window.OpensAt.Unix()}
	a.mu.Lock()
	a.buckets[k] = append(a.buckets[k], r)
	a.mu.Unlock()
}

// Pending returns the number of buffered hours.
func (a *SnapshotArchiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// FlushBefore uploads every buffered hour that ended at or before cutoff and
// returns how many were written. Hours that fail to upload stay buffered.
func (a *SnapshotArchiver) FlushBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return a.flush(ctx, func(k snapshotKey) bool {
		return !time.Unix(k.hour, 0).Add(time.Hour).After(cutoff)
	})
}

// FlushAll uploads every buffered hour, closed or not.
func (a *SnapshotArchiver) FlushAll(ctx context.Context) (int, error) {
	return a.flush(ctx, func(snapshotKey) bool { return true })
}

func (a *SnapshotArchiver) flush(ctx context.Context, due func(snapshotKey) bool) (int, error) {
	a.mu.Lock()
	batch := make(map[snapshotKey][]domain.OpportunityReport)
	for k, reports := range a.buckets {
		if due(k) {
			batch[k] = reports
			delete(a.buckets, k)
		}
	}
	a.mu.Unlock()

	keys := make([]snapshotKey, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hour != keys[j].hour {
			return keys[i].hour < keys[j].hour
		}
		return keys[i].asset < keys[j].asset
	})

	written := 0
	var errs []error
	for _, k := range keys {
		reports := batch[k]
		path := SnapshotPath(a.prefix, k.asset, time.Unix(k.hour, 0))
		if err := a.upload(ctx, path, reports); err != nil {
			errs = append(errs, err)
			a.requeue(k, reports)
			continue
		}
		written++
		a.logger.InfoContext(ctx, "snapshot archived",
			slog.String("path", path),
			slog.Int("reports", len(reports)),
		)
	}
	return written, errors.Join(errs...)
}

func (a *SnapshotArchiver) upload(ctx context.Context, path string, reports []domain.OpportunityReport) error {
	buf, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot %s: %w", path, err)
	}
	if int64(len(buf)) > minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
}

func (a *SnapshotArchiver) requeue(k snapshotKey, reports []domain.OpportunityReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets[k] = append(reports, a.buckets[k]...)
}

// SnapshotPath builds the object key of an hour's snapshot, partitioned by
// the Eastern date and hour:
//
//	snapshots/BTC/2025/03/10/14.json
func SnapshotPath(prefix, asset string, hour time.Time) string {
	et := hour.In(window.Eastern())
	return fmt.Sprintf("%ssnapshots/%s/%s.json", prefix, asset, et.Format("2006/01/02/15"))
}
