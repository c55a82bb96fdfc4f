// Package store implements the entity merge store: a keyed table mapping
// identity to the live version of each derived entity, applying
// last-writer-wins merge when a newer record for a known identity arrives.
//
// The store is the only shared mutable structure in the synchronization
// core. All writes to a given identity's slot are serialized through a
// per-identity lock; reads return the stored immutable snapshot, so
// consumers never observe a half-updated entity. The merge rule is
// commutative and idempotent under reordering and duplication, which is the
// only ordering guarantee the record stream offers.
package store

import (
	"strings"
	"sync"

	"github.com/dyluth/weir/pkg/entity"
)

// Change is published to watchers on every successful upsert. Entity is the
// stored version after the merge; consumers must treat it as immutable.
type Change struct {
	Key    string        // Store key of the changed entity
	Entity entity.Entity // Merged version now held by the store
}

// Store is a concurrent identity-keyed entity table. The zero value is not
// usable; construct with New.
type Store struct {
	mu      sync.RWMutex             // Guards entries map shape and keyLocks
	entries map[string]entity.Entity // identity -> live version
	locks   map[string]*sync.Mutex   // identity -> slot writer lock

	watchMu  sync.Mutex
	watchers map[int]*Watcher
	nextID   int
}

// New creates an empty merge store.
func New() *Store {
	return &Store{
		entries:  make(map[string]entity.Entity),
		locks:    make(map[string]*sync.Mutex),
		watchers: make(map[int]*Watcher),
	}
}

// Upsert applies the candidate entity to its identity's slot and returns
// the stored version together with whether the slot changed.
//
//  1. No entry for the identity: the candidate is inserted as-is.
//  2. Candidate's timestamp <= stored timestamp: candidate is discarded.
//  3. Otherwise the entity's merge policy produces the new stored version.
//
// Change notifications are emitted only when changed is true.
func (s *Store) Upsert(candidate entity.Entity) (entity.Entity, bool) {
	key := candidate.StoreKey()

	lock := s.slotLock(key)
	lock.Lock()

	s.mu.RLock()
	stored, exists := s.entries[key]
	s.mu.RUnlock()

	if exists && candidate.StoreTimestamp() <= stored.StoreTimestamp() {
		lock.Unlock()
		return stored, false
	}

	next := candidate
	if exists {
		next = candidate.MergeFrom(stored)
	}

	s.mu.Lock()
	s.entries[key] = next
	s.mu.Unlock()
	lock.Unlock()

	s.notify(Change{Key: key, Entity: next})
	return next, true
}

// Get returns the live version for the given store key.
func (s *Store) Get(key string) (entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Snapshot returns the live versions of every entity whose store key starts
// with the given prefix (e.g. "project:" for all projects). Order is
// unspecified.
func (s *Store) Snapshot(prefix string) []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []entity.Entity{}
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Revert restores an identity's slot to a previous version, or clears the
// slot when prev is nil. Used to roll back optimistic local state after a
// failed publish. Emits a change notification so consumers re-render.
func (s *Store) Revert(key string, prev entity.Entity) {
	lock := s.slotLock(key)
	lock.Lock()

	s.mu.Lock()
	if prev == nil {
		delete(s.entries, key)
	} else {
		s.entries[key] = prev
	}
	s.mu.Unlock()
	lock.Unlock()

	s.notify(Change{Key: key, Entity: prev})
}

// slotLock returns the writer lock for an identity, creating it on first
// use. Lock creation is guarded by the store mutex; the returned lock
// serializes all merges for that one identity.
func (s *Store) slotLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
