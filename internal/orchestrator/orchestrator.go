// Package orchestrator maintains the set of live subscriptions that feed
// the synchronization core: one logical subscription per semantic filter,
// shared by every consumer interested in it, plus one dedicated presence
// monitor per tracked project. It fans incoming records into the entity
// merge store and the presence reducers, and owns cancellation for the
// whole tree.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/weir/internal/presence"
	"github.com/dyluth/weir/internal/store"
	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
	"github.com/dyluth/weir/pkg/relay"
)

// Handler consumes records delivered by a subscription. Handlers run on the
// subscription's goroutine; they must not block.
type Handler func(*record.Record)

// Orchestrator is the subscription registry and record router. Construct
// with New; the zero value is not usable.
type Orchestrator struct {
	transport relay.Transport
	policy    relay.CachePolicy

	store    *store.Store
	statuses *presence.StatusBoard
	typing   *presence.TypingBoard
	aborts   *presence.AbortDispatcher

	mu       sync.Mutex
	subs     map[string]*subscription // filter signature -> shared subscription
	monitors map[string]*Handle       // project address -> presence monitor
}

// subscription is one live transport subscription shared by every handler
// registered for the same filter signature.
type subscription struct {
	sig      string
	sub      *relay.Subscription
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
}

// New creates an orchestrator routing records into the given store.
// The transport may be nil, in which case every Watch and Publish fails
// with relay.ErrNotConfigured.
func New(transport relay.Transport, st *store.Store, policy relay.CachePolicy) *Orchestrator {
	return &Orchestrator{
		transport: transport,
		policy:    policy,
		store:     st,
		statuses:  presence.NewStatusBoard(),
		typing:    presence.NewTypingBoard(),
		aborts:    presence.NewAbortDispatcher(),
		subs:      make(map[string]*subscription),
		monitors:  make(map[string]*Handle),
	}
}

// Store returns the entity merge store fed by this orchestrator.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Statuses returns the project presence board.
func (o *Orchestrator) Statuses() *presence.StatusBoard { return o.statuses }

// Typing returns the typing signal board.
func (o *Orchestrator) Typing() *presence.TypingBoard { return o.typing }

// Aborts returns the consume-once abort signal channel. Each signal is
// received by exactly one reader.
func (o *Orchestrator) Aborts() <-chan *entity.TaskAbortSignal { return o.aborts.Signals() }

// Watch registers a handler for records matching the filter. Subscriptions
// are deduplicated by the filter's semantic signature: a second Watch for
// the same interest shares the existing transport subscription. The
// returned handle cancels only this handler; the underlying subscription is
// released when its last handler cancels.
func (o *Orchestrator) Watch(ctx context.Context, filter record.Filter, handler Handler) (*Handle, error) {
	if o.transport == nil {
		return nil, fmt.Errorf("watch failed: %w", relay.ErrNotConfigured)
	}

	sig := filter.Signature()

	o.mu.Lock()
	existing, ok := o.subs[sig]
	if ok {
		handle := existing.addHandler(o, handler)
		o.mu.Unlock()
		return handle, nil
	}
	o.mu.Unlock()

	// Open the transport subscription outside the registry lock; a failure
	// here is scoped to this caller.
	sub, err := o.transport.Subscribe(ctx, filter, o.policy)
	if err != nil {
		if relay.IsNotConfigured(err) {
			return nil, err
		}
		return nil, fmt.Errorf("watch failed: %w", err)
	}

	o.mu.Lock()
	// Another caller may have raced us here; prefer theirs and fold in.
	if existing, ok := o.subs[sig]; ok {
		o.mu.Unlock()
		sub.Close()
		return existing.addHandler(o, handler), nil
	}

	s := &subscription{
		sig:      sig,
		sub:      sub,
		handlers: make(map[int]Handler),
	}
	o.subs[sig] = s
	handle := s.addHandler(o, handler)
	o.mu.Unlock()

	go o.drain(s)

	o.logEvent("subscription_opened", map[string]interface{}{
		"signature": sig,
	})

	return handle, nil
}

// Active reports whether a live subscription exists for the filter's
// semantic signature. After a mid-stream transport failure the subscription
// is marked inactive and a fresh Watch retries it.
func (o *Orchestrator) Active(filter record.Filter) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.subs[filter.Signature()]
	return ok
}

// drain is the dedicated task for one subscription. It delivers records to
// the registered handlers until the subscription closes or fails. A
// mid-stream transport error terminates only this subscription: the
// registry entry is dropped so a caller-driven retry can reopen it, and
// sibling subscriptions are unaffected.
func (o *Orchestrator) drain(s *subscription) {
	for {
		select {
		case r, ok := <-s.sub.Records():
			if !ok {
				o.retire(s)
				return
			}
			for _, h := range s.snapshotHandlers() {
				h(r)
			}

		case err, ok := <-s.sub.Errors():
			if !ok {
				o.retire(s)
				return
			}
			o.logEvent("subscription_error", map[string]interface{}{
				"signature": s.sig,
				"error":     err.Error(),
			})
			if relay.IsUnavailable(err) {
				o.retire(s)
				return
			}
			// Non-transport errors (e.g. one undecodable message) degrade
			// to a skipped record.
		}
	}
}

// retire removes a dead subscription from the registry and releases it.
func (o *Orchestrator) retire(s *subscription) {
	o.mu.Lock()
	if o.subs[s.sig] == s {
		delete(o.subs, s.sig)
	}
	o.mu.Unlock()
	s.sub.Close()

	o.logEvent("subscription_retired", map[string]interface{}{
		"signature": s.sig,
	})
}

// addHandler registers a handler and returns its cancellation handle.
// Callers hold no subscription lock.
func (s *subscription) addHandler(o *Orchestrator, handler Handler) *Handle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	h := &Handle{}
	h.cancel = func() {
		s.mu.Lock()
		delete(s.handlers, id)
		empty := len(s.handlers) == 0
		s.mu.Unlock()

		if empty {
			o.retire(s)
		}
	}
	return h
}

// snapshotHandlers copies the handler set so delivery never holds the lock.
func (s *subscription) snapshotHandlers() []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h)
	}
	return out
}

// Handle cancels one consumer's interest in a subscription. Cancel is
// idempotent and safe to call from any goroutine; after Cancel returns no
// further records are delivered to the handler.
type Handle struct {
	cancel func()
	once   sync.Once
}

// Cancel detaches the handler. Calling it again is a no-op.
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
}

// logEvent emits a structured JSON log line.
func (o *Orchestrator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
