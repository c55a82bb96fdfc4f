package presence

import (
	"sync"

	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
)

// abortBuffer bounds how many undelivered abort signals are held. Aborts
// are fire-and-forget; holding more than a handful means nobody is driving
// the tasks anyway.
const abortBuffer = 16

// AbortDispatcher delivers task abort signals to whoever is driving the
// task. Each signal is consumed at most once: duplicate records are
// suppressed by record id, and a delivered signal is never re-delivered.
type AbortDispatcher struct {
	mu      sync.Mutex
	seen    map[string]bool // record id -> already offered
	signals chan *entity.TaskAbortSignal
}

// NewAbortDispatcher creates a dispatcher with a bounded signal queue.
func NewAbortDispatcher() *AbortDispatcher {
	return &AbortDispatcher{
		seen:    make(map[string]bool),
		signals: make(chan *entity.TaskAbortSignal, abortBuffer),
	}
}

// Offer parses an abort record and queues its signal for delivery. Returns
// true when the signal was queued, false for duplicates or when the queue
// is saturated.
func (d *AbortDispatcher) Offer(r *record.Record) bool {
	sig := entity.TaskAbortSignalFromRecord(r)
	if sig.TaskID == "" {
		return false
	}

	d.mu.Lock()
	if d.seen[sig.RecordID] {
		d.mu.Unlock()
		return false
	}
	d.seen[sig.RecordID] = true
	d.mu.Unlock()

	select {
	case d.signals <- sig:
		return true
	default:
		return false
	}
}

// Signals returns the delivery channel. Each signal is received by exactly
// one reader.
func (d *AbortDispatcher) Signals() <-chan *entity.TaskAbortSignal {
	return d.signals
}
