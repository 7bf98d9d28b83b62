package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	interval  time.Duration
	fn        func()
	cancelled bool
}

// fakeScheduler records jobs and fires them on demand.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[string]*fakeJob
	adds int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]*fakeJob)}
}

func (f *fakeScheduler) Every(name string, interval time.Duration, fn func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &fakeJob{interval: interval, fn: fn}
	f.jobs[name] = job
	f.adds++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		job.cancelled = true
	}, nil
}

func (f *fakeScheduler) active() []*fakeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeJob
	for _, j := range f.jobs {
		if !j.cancelled {
			out = append(out, j)
		}
	}
	return out
}

// fire runs every job, including cancelled ones, to prove the watcher
// itself ignores ticks after Stop.
func (f *fakeScheduler) fireAll() {
	f.mu.Lock()
	jobs := make([]*fakeJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		jobs = append(jobs, j)
	}
	f.mu.Unlock()
	for _, j := range jobs {
		j.fn()
	}
}

type countingEngine struct {
	calls     int32
	inFlight  int32
	overlap   int32
	delay     time.Duration
	refreshFn func(draft Draft) (Snapshot, error)
}

func (e *countingEngine) Refresh(ctx context.Context, draft Draft) (Snapshot, error) {
	atomic.AddInt32(&e.calls, 1)
	if atomic.AddInt32(&e.inFlight, 1) > 1 {
		atomic.StoreInt32(&e.overlap, 1)
	}
	defer atomic.AddInt32(&e.inFlight, -1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.refreshFn != nil {
		return e.refreshFn(draft)
	}
	return Snapshot{Draft: draft, Available: map[string]bool{"s1": true}}, nil
}

func (e *countingEngine) count() int32 { return atomic.LoadInt32(&e.calls) }

var deskDraft = Draft{BuildingID: "b1", SpaceType: "desk", Date: "2026-10-16"}

func TestWatcher_PollingLifecycle(t *testing.T) {
	engine := &countingEngine{}
	sched := newFakeScheduler()
	w := NewWatcher(engine, sched, WatcherConfig{Name: "availability:s1"})

	state, err := w.Start(context.Background(), deskDraft)
	require.NoError(t, err)
	assert.True(t, state.Running)
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, int32(1), engine.count())

	active := sched.active()
	require.Len(t, active, 1)
	assert.Equal(t, 30*time.Second, active[0].interval)

	// Starting again does not add a second timer.
	_, err = w.Start(context.Background(), deskDraft)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.adds)

	sched.fireAll()
	sched.fireAll()
	assert.Equal(t, int32(3), engine.count())

	w.Stop()
	assert.Empty(t, sched.active())

	sched.fireAll()
	w.Refresh(context.Background())
	assert.Equal(t, int32(3), engine.count())
	assert.False(t, w.State().Running)
}

func TestWatcher_SetDraftRefreshesOnFilterChange(t *testing.T) {
	engine := &countingEngine{}
	w := NewWatcher(engine, newFakeScheduler(), WatcherConfig{})

	_, err := w.Start(context.Background(), deskDraft)
	require.NoError(t, err)

	same := deskDraft
	same.Floor = "2"
	w.SetDraft(context.Background(), same)
	assert.Equal(t, int32(1), engine.count())

	other := deskDraft
	other.Date = "2026-10-17"
	state := w.SetDraft(context.Background(), other)
	assert.Equal(t, int32(2), engine.count())
	assert.Equal(t, "2026-10-17", state.Snapshot.Draft.Date)
}

func TestWatcher_FailureKeepsSnapshot(t *testing.T) {
	fail := int32(0)
	engine := &countingEngine{refreshFn: func(draft Draft) (Snapshot, error) {
		if atomic.LoadInt32(&fail) == 1 {
			return Snapshot{}, errors.New("loading spaces: network error")
		}
		return Snapshot{Draft: draft, Available: map[string]bool{"s1": false}}, nil
	}}

	var changes int32
	w := NewWatcher(engine, newFakeScheduler(), WatcherConfig{
		OnChange: func(WatchState) { atomic.AddInt32(&changes, 1) },
	})

	_, err := w.Start(context.Background(), deskDraft)
	require.NoError(t, err)

	atomic.StoreInt32(&fail, 1)
	state := w.Refresh(context.Background())
	assert.Equal(t, "loading spaces: network error", state.Banner)
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, map[string]bool{"s1": false}, state.Snapshot.Available)

	w.DismissBanner()
	assert.Empty(t, w.State().Banner)
	assert.Equal(t, int32(2), atomic.LoadInt32(&changes))

	atomic.StoreInt32(&fail, 0)
	w.Refresh(context.Background())
	assert.Empty(t, w.State().Banner)
}

func TestWatcher_RefreshesNeverOverlap(t *testing.T) {
	engine := &countingEngine{delay: 10 * time.Millisecond}
	sched := newFakeScheduler()
	w := NewWatcher(engine, sched, WatcherConfig{})
	_, err := w.Start(context.Background(), deskDraft)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); w.Refresh(context.Background()) }()
		go func() { defer wg.Done(); sched.fireAll() }()
	}
	wg.Wait()

	assert.Equal(t, int32(9), engine.count())
	assert.Equal(t, int32(0), atomic.LoadInt32(&engine.overlap))
}

func TestRegistry_RefreshAllAndClose(t *testing.T) {
	reg := NewRegistry()
	engines := []*countingEngine{{}, {}}
	for i, e := range engines {
		owner := []string{"a", "b"}[i]
		w := reg.Open(owner, func() *Watcher {
			return NewWatcher(e, newFakeScheduler(), WatcherConfig{Name: owner})
		})
		_, err := w.Start(context.Background(), deskDraft)
		require.NoError(t, err)
	}

	again := reg.Open("a", func() *Watcher {
		t.Fatal("existing watcher must be reused")
		return nil
	})
	require.NotNil(t, again)

	reg.RefreshAll(context.Background())
	for _, e := range engines {
		assert.Equal(t, int32(2), e.count())
	}

	reg.Close("a")
	assert.Equal(t, 1, reg.Len())
	assert.False(t, again.State().Running)

	reg.CloseAll()
	assert.Equal(t, 0, reg.Len())
}

func TestCronScheduler_ReplaceAndCancel(t *testing.T) {
	s := NewCronScheduler(nil)

	_, err := s.Every("job", 500*time.Millisecond, func() {})
	assert.Error(t, err)

	cancelOld, err := s.Every("job", 30*time.Second, func() {})
	require.NoError(t, err)
	cancelNew, err := s.Every("job", 30*time.Second, func() {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())

	// The replaced job's cancel must not remove its successor.
	cancelOld()
	assert.Equal(t, 1, s.Jobs())

	cancelNew()
	assert.Equal(t, 0, s.Jobs())
}
