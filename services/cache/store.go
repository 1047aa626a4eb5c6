// Package cache holds the retrieval result cache backends.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value cache with per-entry TTL. Values are
// written whole and never partially updated; concurrent writes to one key
// are last-write-wins.
type Store interface {
	// Get returns the value for key. A missing or expired entry is reported
	// as found == false with a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// NoopStore never stores anything. It backs CACHE_BACKEND=none.
type NoopStore struct{}

// NewNoopStore returns a store that always misses.
func NewNoopStore() *NoopStore { return &NoopStore{} }

func (NoopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopStore) Ping(context.Context) error { return nil }
func (NoopStore) Close() error { return nil }

var (
	_ Store = (*NoopStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BadgerStore)(nil)
)
