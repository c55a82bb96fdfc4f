// Package presence holds the reducers for ephemeral presence data: project
// status snapshots, typing indicators and task abort signals. Presence is
// never authoritative history - status snapshots replace each other
// wholesale, typing signals expire by wall clock, and abort signals are
// consumed exactly once.
package presence

import (
	"sync"
	"time"

	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
)

// ReduceStatus is the pure wholesale-replace rule for status snapshots:
// the newer snapshot wins in full, an equal or older one is discarded.
// Returns the surviving snapshot and whether it changed.
func ReduceStatus(prev, next *entity.ProjectStatus) (*entity.ProjectStatus, bool) {
	if prev == nil {
		return next, true
	}
	if next.ObservedAt <= prev.ObservedAt {
		return prev, false
	}
	return next, true
}

// ReduceTyping is the pure replace rule for typing signals: latest declared
// timestamp wins per conversation. Validity is not evaluated here - it is a
// read-time predicate, never reduced state.
func ReduceTyping(prev, next *entity.TypingSignal) (*entity.TypingSignal, bool) {
	if prev == nil {
		return next, true
	}
	if next.ObservedAt <= prev.ObservedAt {
		return prev, false
	}
	return next, true
}

// StatusBoard tracks the latest status snapshot per project. Thread-safe.
type StatusBoard struct {
	mu        sync.RWMutex
	snapshots map[string]*entity.ProjectStatus // project address -> latest
}

// NewStatusBoard creates an empty status board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{snapshots: make(map[string]*entity.ProjectStatus)}
}

// Apply parses a status record and reduces it onto the board. Returns the
// surviving snapshot for the project and whether the board changed.
func (b *StatusBoard) Apply(r *record.Record) (*entity.ProjectStatus, bool) {
	next := entity.ProjectStatusFromRecord(r)
	key := next.ProjectAddress.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	merged, changed := ReduceStatus(b.snapshots[key], next)
	if changed {
		b.snapshots[key] = merged
	}
	return merged, changed
}

// Latest returns the latest snapshot for a project address, or nil when no
// status record has been observed. A non-nil result only means a record was
// seen at some point; consumers decide how stale is too stale via
// ObservedAt (the core does not invent an offline transition).
func (b *StatusBoard) Latest(address entity.Address) *entity.ProjectStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshots[address.String()]
}

// TypingBoard tracks the latest typing signal per conversation.
// Thread-safe. Expiry is evaluated on read against the validity window,
// never cached.
type TypingBoard struct {
	mu      sync.RWMutex
	signals map[string]*entity.TypingSignal // conversation id -> latest
}

// NewTypingBoard creates an empty typing board.
func NewTypingBoard() *TypingBoard {
	return &TypingBoard{signals: make(map[string]*entity.TypingSignal)}
}

// Apply parses a typing start/stop record and reduces it onto the board.
func (b *TypingBoard) Apply(r *record.Record) (*entity.TypingSignal, bool) {
	next := entity.TypingSignalFromRecord(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	merged, changed := ReduceTyping(b.signals[next.ConversationID], next)
	if changed {
		b.signals[next.ConversationID] = merged
	}
	return merged, changed
}

// Active returns the signals still inside their validity window at the
// given instant, one per conversation.
func (b *TypingBoard) Active(now time.Time) []*entity.TypingSignal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	active := []*entity.TypingSignal{}
	for _, sig := range b.signals {
		if sig.IsValidAt(now) {
			active = append(active, sig)
		}
	}
	return active
}

// Get returns the latest signal for a conversation regardless of validity,
// or nil when none has been observed. Callers check IsValidAt themselves.
func (b *TypingBoard) Get(conversationID string) *entity.TypingSignal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.signals[conversationID]
}
