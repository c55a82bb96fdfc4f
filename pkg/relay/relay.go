// Package relay defines the transport contract the synchronization core
// consumes. The transport is a black box exposing subscribe/collect/publish
// operations over filters; connection management, message signing and
// verification live behind it. A Redis-backed implementation ships in
// internal/relay/redisrelay.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// ErrNotConfigured indicates no transport or signing identity is bound.
// Fatal to the requested operation; surfaced directly to the caller.
var ErrNotConfigured = errors.New("relay transport not configured")

// ErrUnavailable indicates a subscribe or publish failed at the transport
// boundary. Recoverable; the caller may retry. The failure is scoped to the
// one operation that raised it.
var ErrUnavailable = errors.New("relay transport unavailable")

// CachePolicy governs whether the transport may serve stale local data
// before or alongside live delivery. The core behaves correctly under all
// three policies: the per-identity recency rule is commutative and
// idempotent, so replayed or duplicated cache data cannot corrupt state.
type CachePolicy string

const (
	// CacheOnly serves exclusively from the local cache; no live delivery.
	CacheOnly CachePolicy = "cache-only"

	// NetworkOnly skips the local cache entirely.
	NetworkOnly CachePolicy = "network-only"

	// CacheThenNetwork replays the local cache first, then continues with
	// live delivery. Records may be delivered twice; dedup is the
	// consumer's recency rule, not the transport's problem.
	CacheThenNetwork CachePolicy = "cache-then-network"
)

// Validate checks the policy is a known enum value.
func (p CachePolicy) Validate() error {
	switch p {
	case CacheOnly, NetworkOnly, CacheThenNetwork:
		return nil
	default:
		return errors.New("unknown cache policy: " + string(p))
	}
}

// Transport is the pub/sub contract implemented by an external relay
// client. Subscriptions are continuous and never terminate on their own;
// mid-stream failures surface on the subscription's error channel and are
// scoped to that one subscription.
type Transport interface {
	// Subscribe opens a continuous record stream matching the filter.
	// Returns ErrNotConfigured or ErrUnavailable (wrapped) on failure.
	Subscribe(ctx context.Context, filter record.Filter, policy CachePolicy) (*Subscription, error)

	// CollectOnce gathers the records matching the filter that are
	// available within the timeout, then returns. Bounded one-shot variant
	// of Subscribe.
	CollectOnce(ctx context.Context, filter record.Filter, timeout time.Duration) ([]*record.Record, error)

	// Publish sends a record to the network and returns the destinations
	// that acknowledged receipt.
	Publish(ctx context.Context, r *record.Record) ([]string, error)
}

// Subscription is an active record stream. Callers must Close it when done;
// Close is idempotent and safe to call from any goroutine. Context
// cancellation also stops the subscription.
type Subscription struct {
	records <-chan *record.Record
	errors  <-chan error
	cancel  func()
	once    sync.Once
}

// NewSubscription wraps delivery channels and a cancel function into a
// Subscription. Intended for Transport implementations.
func NewSubscription(records <-chan *record.Record, errs <-chan error, cancel func()) *Subscription {
	return &Subscription{records: records, errors: errs, cancel: cancel}
}

// Records returns the channel of matching records. Closed when the
// subscription is closed or its context is cancelled.
func (s *Subscription) Records() <-chan *record.Record {
	return s.records
}

// Errors returns the channel of subscription errors. Errors are non-fatal
// to siblings: each terminates or degrades only this subscription.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and releases the underlying transport
// resources. Safe to call multiple times; subsequent calls are no-ops.
// Implements io.Closer.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// IsNotConfigured reports whether err is (or wraps) ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsUnavailable reports whether err is (or wraps) ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
