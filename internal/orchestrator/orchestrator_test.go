package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/weir/internal/store"
	"github.com/dyluth/weir/pkg/entity"
	"github.com/dyluth/weir/pkg/record"
	"github.com/dyluth/weir/pkg/relay"
)

// fakeTransport implements relay.Transport in-process. Each Subscribe call
// yields a stream the test drives by hand via emit/fail/end.
type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream

	publishErr error
	published  []*record.Record
}

type fakeStream struct {
	filter  record.Filter
	records chan *record.Record
	errors  chan error
	closed  bool
	mu      sync.Mutex
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Subscribe(ctx context.Context, filter record.Filter, _ relay.CachePolicy) (*relay.Subscription, error) {
	s := &fakeStream{
		filter:  filter,
		records: make(chan *record.Record, 16),
		errors:  make(chan error, 16),
	}

	t.mu.Lock()
	t.streams = append(t.streams, s)
	t.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.closed = true
			close(s.records)
			close(s.errors)
		}
	}
	return relay.NewSubscription(s.records, s.errors, cancel), nil
}

func (t *fakeTransport) CollectOnce(_ context.Context, _ record.Filter, _ time.Duration) ([]*record.Record, error) {
	return nil, nil
}

func (t *fakeTransport) Publish(_ context.Context, r *record.Record) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.publishErr != nil {
		return nil, t.publishErr
	}
	t.published = append(t.published, r)
	return []string{"fake://relay"}, nil
}

func (t *fakeTransport) streamCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func (t *fakeTransport) stream(i int) *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[i]
}

// streamFor returns the first stream whose filter signature matches.
func (t *fakeTransport) streamFor(filter record.Filter) *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig := filter.Signature()
	for _, s := range t.streams {
		if s.filter.Signature() == sig {
			return s
		}
	}
	return nil
}

func (s *fakeStream) emit(r *record.Record) {
	s.records <- r
}

func (s *fakeStream) fail(err error) {
	s.errors <- err
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func projectRecord(id, slug, title string, createdAt int64) *record.Record {
	return &record.Record{
		ID: id, Creator: "pk1", Kind: record.KindProject, CreatedAt: createdAt,
		Tags: [][]string{{"d", slug}, {"title", title}},
	}
}

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatchRequiresTransport(t *testing.T) {
	o := New(nil, store.New(), relay.NetworkOnly)

	_, err := o.Watch(context.Background(), record.Filter{}, func(*record.Record) {})
	assert.True(t, relay.IsNotConfigured(err))

	_, err = o.PublishRecord(context.Background(), projectRecord("r1", "proj1", "Alpha", 100))
	assert.True(t, relay.IsNotConfigured(err))
}

func TestWatchSharesSubscriptions(t *testing.T) {
	transport := newFakeTransport()
	o := New(transport, store.New(), relay.NetworkOnly)
	ctx := context.Background()

	filter := record.Filter{Kinds: []int{record.KindProject}}

	var mu sync.Mutex
	var gotA, gotB []string

	hA, err := o.Watch(ctx, filter, func(r *record.Record) {
		mu.Lock()
		gotA = append(gotA, r.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	// Same semantic interest expressed with reordered criteria.
	hB, err := o.Watch(ctx, record.Filter{Kinds: []int{record.KindProject}}, func(r *record.Record) {
		mu.Lock()
		gotB = append(gotB, r.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 1, transport.streamCount(), "equal filters share one transport subscription")

	transport.stream(0).emit(projectRecord("r1", "proj1", "Alpha", 100))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, "both handlers should receive the record")

	t.Run("cancelling one handler leaves the other attached", func(t *testing.T) {
		hA.Cancel()
		transport.stream(0).emit(projectRecord("r2", "proj1", "Beta", 200))

		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(gotB) == 2
		}, "remaining handler should keep receiving")

		mu.Lock()
		assert.Len(t, gotA, 1, "cancelled handler must not receive further records")
		mu.Unlock()
		assert.True(t, o.Active(filter))
	})

	t.Run("last cancel releases the subscription", func(t *testing.T) {
		hB.Cancel()
		waitFor(t, func() bool { return transport.stream(0).isClosed() },
			"transport subscription should be closed")
		assert.False(t, o.Active(filter))
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		hA.Cancel()
		hB.Cancel()
	})
}

func TestMidStreamFailureIsScoped(t *testing.T) {
	transport := newFakeTransport()
	o := New(transport, store.New(), relay.NetworkOnly)
	ctx := context.Background()

	projects := record.Filter{Kinds: []int{record.KindProject}}
	tasks := record.Filter{Kinds: []int{record.KindTask}}

	_, err := o.Watch(ctx, projects, func(*record.Record) {})
	require.NoError(t, err)
	_, err = o.Watch(ctx, tasks, func(*record.Record) {})
	require.NoError(t, err)
	require.Equal(t, 2, transport.streamCount())

	transport.stream(0).fail(relay.ErrUnavailable)

	waitFor(t, func() bool { return !o.Active(projects) },
		"failed subscription should be retired")
	assert.True(t, o.Active(tasks), "sibling subscription must stay live")

	t.Run("a fresh watch reopens the retired interest", func(t *testing.T) {
		_, err := o.Watch(ctx, projects, func(*record.Record) {})
		require.NoError(t, err)
		assert.True(t, o.Active(projects))
		assert.Equal(t, 3, transport.streamCount())
	})
}

func TestNonFatalErrorKeepsSubscription(t *testing.T) {
	transport := newFakeTransport()
	o := New(transport, store.New(), relay.NetworkOnly)

	filter := record.Filter{Kinds: []int{record.KindProject}}

	var mu sync.Mutex
	var got []string
	_, err := o.Watch(context.Background(), filter, func(r *record.Record) {
		mu.Lock()
		got = append(got, r.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	transport.stream(0).fail(assert.AnError)
	transport.stream(0).emit(projectRecord("r1", "proj1", "Alpha", 100))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "subscription should survive a non-transport error")
	assert.True(t, o.Active(filter))
}

func TestIngest(t *testing.T) {
	o := New(newFakeTransport(), store.New(), relay.NetworkOnly)

	t.Run("entity records reach the merge store", func(t *testing.T) {
		e, changed := o.Ingest(projectRecord("r1", "proj1", "Alpha", 100))
		require.True(t, changed)
		assert.Equal(t, "Alpha", e.(*entity.Project).Title)

		_, ok := o.Store().Get("project:31933:pk1:proj1")
		assert.True(t, ok)
	})

	t.Run("status records feed the presence board and the store", func(t *testing.T) {
		_, changed := o.Ingest(&record.Record{
			ID: "s1", Creator: "pk1", Kind: record.KindProjectStatus, CreatedAt: 100,
			Tags: [][]string{
				{"a", "31933:pk1:proj1"},
				{"agent", "pk-x", "x"},
			},
		})
		assert.True(t, changed)

		latest := o.Statuses().Latest(entity.NewAddress(record.KindProject, "pk1", "proj1"))
		require.NotNil(t, latest)
		assert.Len(t, latest.AvailableAgents, 1)
	})

	t.Run("abort records go to the dispatcher only", func(t *testing.T) {
		e, changed := o.Ingest(&record.Record{
			ID: "a1", Creator: "pk1", Kind: record.KindTaskAbort, CreatedAt: 100,
			Tags: [][]string{{"e", "task-1"}},
		})
		assert.Nil(t, e)
		assert.False(t, changed)

		select {
		case sig := <-o.Aborts():
			assert.Equal(t, "task-1", sig.TaskID)
		default:
			t.Fatal("abort signal not dispatched")
		}
	})
}

func TestSyncProjects(t *testing.T) {
	transport := newFakeTransport()
	o := New(transport, store.New(), relay.NetworkOnly)
	ctx := context.Background()

	handle, err := o.SyncProjects(ctx, []string{"pk1"})
	require.NoError(t, err)
	require.Equal(t, 1, transport.streamCount())

	projectStream := transport.stream(0)

	t.Run("a new project starts its presence monitor", func(t *testing.T) {
		projectStream.emit(projectRecord("r1", "proj1", "Alpha", 100))

		waitFor(t, func() bool { return o.MonitorCount() == 1 },
			"monitor should start when the project first appears")
		require.Equal(t, 2, transport.streamCount())

		monitor := transport.stream(1)
		assert.Contains(t, monitor.filter.Tags["a"], "31933:pk1:proj1")
		assert.ElementsMatch(t, []int{
			record.KindProjectStatus,
			record.KindTypingStart,
			record.KindTypingStop,
			record.KindTaskAbort,
		}, monitor.filter.Kinds)
	})

	t.Run("a refreshed project does not start a second monitor", func(t *testing.T) {
		projectStream.emit(projectRecord("r2", "proj1", "Alpha renamed", 200))

		waitFor(t, func() bool {
			_, ok := o.Store().Get("project:31933:pk1:proj1")
			if !ok {
				return false
			}
			e, _ := o.Store().Get("project:31933:pk1:proj1")
			return e.(*entity.Project).Title == "Alpha renamed"
		}, "refresh should reach the store")

		assert.Equal(t, 1, o.MonitorCount())
		assert.Equal(t, 2, transport.streamCount())
	})

	t.Run("a second project gets its own monitor", func(t *testing.T) {
		projectStream.emit(projectRecord("r3", "proj2", "Beta", 100))

		waitFor(t, func() bool { return o.MonitorCount() == 2 },
			"each project identity gets a dedicated monitor")
	})

	t.Run("monitor records feed the presence boards", func(t *testing.T) {
		monitor := transport.streamFor(monitorFilter(entity.NewAddress(record.KindProject, "pk1", "proj1")))
		require.NotNil(t, monitor)

		monitor.emit(&record.Record{
			ID: "s1", Creator: "pk1", Kind: record.KindProjectStatus, CreatedAt: 100,
			Tags: [][]string{
				{"a", "31933:pk1:proj1"},
				{"agent", "pk-x", "x"},
			},
		})

		waitFor(t, func() bool {
			return o.Statuses().Latest(entity.NewAddress(record.KindProject, "pk1", "proj1")) != nil
		}, "status snapshot should reach the board")
	})

	t.Run("cancelling the sync tears down every monitor", func(t *testing.T) {
		handle.Cancel()

		waitFor(t, func() bool { return o.MonitorCount() == 0 },
			"monitors should be cleared on cancel")
		waitFor(t, func() bool { return projectStream.isClosed() },
			"project subscription should be closed")
	})
}

func TestMonitorRestartAfterFailure(t *testing.T) {
	transport := newFakeTransport()
	o := New(transport, store.New(), relay.NetworkOnly)
	ctx := context.Background()

	_, err := o.SyncProjects(ctx, []string{"pk1"})
	require.NoError(t, err)

	projectStream := transport.stream(0)
	projectStream.emit(projectRecord("r1", "proj1", "Alpha", 100))
	waitFor(t, func() bool { return transport.streamCount() == 2 }, "monitor should start")

	// Kill the monitor's subscription mid-stream.
	transport.stream(1).fail(relay.ErrUnavailable)
	waitFor(t, func() bool {
		return !o.Active(monitorFilter(entity.NewAddress(record.KindProject, "pk1", "proj1")))
	}, "dead monitor subscription should be retired")

	// The next project refresh revives the monitor.
	projectStream.emit(projectRecord("r2", "proj1", "Alpha again", 200))
	waitFor(t, func() bool { return transport.streamCount() == 3 },
		"monitor should be restarted on the next project event")
	assert.Equal(t, 1, o.MonitorCount())
}

func TestPublishRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("successful publish applies optimistically", func(t *testing.T) {
		transport := newFakeTransport()
		o := New(transport, store.New(), relay.NetworkOnly)

		acks, err := o.PublishRecord(ctx, projectRecord("r1", "proj1", "Alpha", 100))
		require.NoError(t, err)
		assert.Equal(t, []string{"fake://relay"}, acks)

		e, ok := o.Store().Get("project:31933:pk1:proj1")
		require.True(t, ok)
		assert.Equal(t, "Alpha", e.(*entity.Project).Title)
	})

	t.Run("failed publish rolls back to the prior entity", func(t *testing.T) {
		transport := newFakeTransport()
		o := New(transport, store.New(), relay.NetworkOnly)

		_, err := o.PublishRecord(ctx, projectRecord("r1", "proj1", "Alpha", 100))
		require.NoError(t, err)

		transport.publishErr = relay.ErrUnavailable
		_, err = o.PublishRecord(ctx, projectRecord("r2", "proj1", "Beta", 200))
		require.True(t, relay.IsUnavailable(err))

		e, ok := o.Store().Get("project:31933:pk1:proj1")
		require.True(t, ok)
		assert.Equal(t, "Alpha", e.(*entity.Project).Title, "optimistic update must be rolled back")
	})

	t.Run("failed first publish clears the slot", func(t *testing.T) {
		transport := newFakeTransport()
		transport.publishErr = relay.ErrUnavailable
		o := New(transport, store.New(), relay.NetworkOnly)

		_, err := o.PublishRecord(ctx, projectRecord("r1", "proj1", "Alpha", 100))
		require.Error(t, err)

		_, ok := o.Store().Get("project:31933:pk1:proj1")
		assert.False(t, ok)
	})
}
