package orchestrator

import (
	"context"
	"fmt"

	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
	"github.com/dyluth/weir/pkg/relay"
)

// Ingest routes one record into the core: abort records go to the
// consume-once dispatcher, presence records additionally feed their boards,
// everything that derives an entity goes through the merge store. Returns
// the stored entity and whether the store changed (nil, false for
// non-entity kinds). Parsing and merging never fail; a malformed record
// resolves to defaults.
func (o *Orchestrator) Ingest(r *record.Record) (entity.Entity, bool) {
	switch r.Kind {
	case record.KindTaskAbort:
		o.aborts.Offer(r)
		return nil, false
	case record.KindProjectStatus:
		o.statuses.Apply(r)
	case record.KindTypingStart, record.KindTypingStop:
		o.typing.Apply(r)
	}

	e := entity.FromRecord(r)
	if e == nil {
		return nil, false
	}
	return o.store.Upsert(e)
}

// SyncProjects opens the hierarchical watch at the heart of the
// synchronization layer: one subscription for the project records of the
// given authors, and - the moment each project first appears, not waiting
// for any batch - one dedicated presence monitor per project identity.
// Cancelling the returned handle propagates to every derived monitor.
func (o *Orchestrator) SyncProjects(ctx context.Context, authors []string) (*Handle, error) {
	syncCtx, cancelMonitors := context.WithCancel(ctx)

	filter := record.Filter{
		Authors: authors,
		Kinds:   []int{record.KindProject},
	}

	parent, err := o.Watch(syncCtx, filter, func(r *record.Record) {
		e, changed := o.Ingest(r)
		if !changed {
			return
		}
		project, ok := e.(*entity.Project)
		if !ok || project.Address.IsZero() {
			return
		}
		o.ensureMonitor(syncCtx, project.Address)
	})
	if err != nil {
		cancelMonitors()
		return nil, err
	}

	h := &Handle{}
	h.cancel = func() {
		parent.Cancel()
		cancelMonitors()

		o.mu.Lock()
		o.monitors = make(map[string]*Handle)
		o.mu.Unlock()
	}
	return h, nil
}

// ensureMonitor starts the presence monitor for a project identity if none
// is running. Idempotent: at most one active monitor per identity. A
// monitor whose subscription died mid-stream is detected here and
// restarted, which also covers a project identity disappearing and
// reappearing under a different underlying record.
func (o *Orchestrator) ensureMonitor(ctx context.Context, address entity.Address) {
	filter := monitorFilter(address)

	o.mu.Lock()
	stale, running := o.monitors[address.String()]
	if running && o.activeLocked(filter) {
		o.mu.Unlock()
		return
	}
	delete(o.monitors, address.String())
	o.mu.Unlock()

	if running {
		// The previous monitor's subscription died mid-stream; detach its
		// handler before starting the replacement.
		stale.Cancel()
	}

	handle, err := o.Watch(ctx, filter, func(r *record.Record) {
		o.Ingest(r)
	})
	if err != nil {
		o.logEvent("monitor_failed", map[string]interface{}{
			"project": address.String(),
			"error":   err.Error(),
		})
		return
	}

	o.mu.Lock()
	if _, running := o.monitors[address.String()]; running {
		// Lost the race to another starter; keep the first.
		o.mu.Unlock()
		handle.Cancel()
		return
	}
	o.monitors[address.String()] = handle
	o.mu.Unlock()

	o.logEvent("monitor_started", map[string]interface{}{
		"project": address.String(),
	})
}

// MonitorCount returns the number of running presence monitors.
func (o *Orchestrator) MonitorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.monitors)
}

// activeLocked is Active for callers already holding o.mu.
func (o *Orchestrator) activeLocked(filter record.Filter) bool {
	_, ok := o.subs[filter.Signature()]
	return ok
}

// monitorFilter is the per-project presence interest: status snapshots,
// typing signals and abort instructions referencing the project.
func monitorFilter(address entity.Address) record.Filter {
	return record.Filter{
		Kinds: []int{
			record.KindProjectStatus,
			record.KindTypingStart,
			record.KindTypingStop,
			record.KindTaskAbort,
		},
		Tags: map[string][]string{"a": {address.String()}},
	}
}

// PublishRecord applies the record's entity optimistically, publishes it,
// and rolls the optimistic state back if the publish fails so the caller
// can restore its draft and present the error. Returns the acknowledging
// destinations.
func (o *Orchestrator) PublishRecord(ctx context.Context, r *record.Record) ([]string, error) {
	if o.transport == nil {
		return nil, fmt.Errorf("publish failed: %w", relay.ErrNotConfigured)
	}

	var key string
	var prev entity.Entity
	var applied bool

	if e := entity.FromRecord(r); e != nil {
		key = e.StoreKey()
		prev, _ = o.store.Get(key)
		_, applied = o.store.Upsert(e)
	}

	acks, err := o.transport.Publish(ctx, r)
	if err != nil {
		if applied {
			o.store.Revert(key, prev)
		}
		return nil, err
	}

	return acks, nil
}
