// Package cache defines the pluggable local record cache consulted by the
// transport under the cache-serving policies, plus a no-op implementation
// for network-only setups. The SQLite implementation lives in sqlite.go.
//
// The cache is strictly an optimization: it may serve stale or duplicated
// records, because the core's recency rule makes replay harmless.
package cache

import (
	"context"

	"github.com/dyluth/weir/pkg/record"
)

// Cache stores raw records locally and answers filter queries over them.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Put stores a record. Re-putting the same record id is a no-op.
	Put(ctx context.Context, r *record.Record) error

	// Query returns the cached records matching the filter, oldest first.
	Query(ctx context.Context, filter record.Filter) ([]*record.Record, error)

	// Close releases cache resources. Implements io.Closer.
	Close() error
}

// Null is a Cache that stores nothing and returns nothing. Used when the
// caller runs network-only.
type Null struct{}

// Put discards the record.
func (Null) Put(ctx context.Context, r *record.Record) error { return nil }

// Query returns no records.
func (Null) Query(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	return []*record.Record{}, nil
}

// Close is a no-op.
func (Null) Close() error { return nil }
