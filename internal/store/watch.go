package store

import "sync"

// watchBuffer is the per-watcher channel depth. A watcher that falls this
// far behind starts losing intermediate versions; it will still observe the
// latest state of any identity via a subsequent change or a Get.
const watchBuffer = 64

// Watcher is an active change-notification subscription on the store.
// Callers must Close it when done; Close is idempotent and safe from any
// goroutine.
type Watcher struct {
	changes chan Change
	cancel  func()
	once    sync.Once
}

// Changes returns the channel of change notifications. Closed when the
// watcher is closed.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Close detaches the watcher from the store and closes its channel.
// Safe to call multiple times. Implements io.Closer.
func (w *Watcher) Close() error {
	w.once.Do(w.cancel)
	return nil
}

// Watch registers a new change watcher. Delivery is at-most-once per
// change: a watcher whose buffer is full misses that notification rather
// than blocking the writer.
func (s *Store) Watch() *Watcher {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	id := s.nextID
	s.nextID++

	w := &Watcher{changes: make(chan Change, watchBuffer)}
	w.cancel = func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
		close(w.changes)
	}

	s.watchers[id] = w
	return w
}

// notify fans a change out to every registered watcher without blocking.
func (s *Store) notify(change Change) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, w := range s.watchers {
		select {
		case w.changes <- change:
		default:
			// Watcher is saturated; it catches up from later changes.
		}
	}
}
