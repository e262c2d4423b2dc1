package domain

import (
	"context"
	"time"
)

// DiscoveryCandidate is one listed event returned by a discovery query.
type DiscoveryCandidate struct {
	Identifier string    `json:"identifier"`
	ClosesAt   time.Time `json:"closes_at"`
}

// DiscoveryEntry is the cached result of one date-scoped discovery query.
type DiscoveryEntry struct {
	Venue      Venue                `json:"venue"`
	Asset      string               `json:"asset"`
	Date       string               `json:"date"`
	Candidates []DiscoveryCandidate `json:"candidates"`
	FetchedAt  time.Time            `json:"fetched_at"`
}

// DiscoveryCache memoises discovery listings per (venue, asset). An entry is
// only served for the date it was fetched for.
type DiscoveryCache interface {
	Get(ctx context.Context, venue Venue, asset, date string) (DiscoveryEntry, bool, error)
	Put(ctx context.Context, entry DiscoveryEntry, ttl time.Duration) error
}

// PriceToBeat is an asset's reference price at the opening of an hour.
type PriceToBeat struct {
	Asset  string    `json:"asset"`
	Hour   time.Time `json:"hour"`
	Price  float64   `json:"price"`
	Source string    `json:"source"`
}

// PriceToBeatCache stores reference prices per (asset, hour). Get returns
// ErrNotFound on a miss.
type PriceToBeatCache interface {
	Get(ctx context.Context, asset string, hour time.Time) (PriceToBeat, error)
	Set(ctx context.Context, p PriceToBeat, ttl time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
