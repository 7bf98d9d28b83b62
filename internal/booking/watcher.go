package booking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshInterval is how often an open availability page refreshes.
const DefaultRefreshInterval = 30 * time.Second

// Refresher computes a snapshot for a draft.
type Refresher interface {
	Refresh(ctx context.Context, draft Draft) (Snapshot, error)
}

// WatchState is what an availability page renders.
type WatchState struct {
	Draft      Draft     `json:"draft"`
	Snapshot   *Snapshot `json:"snapshot,omitempty"`
	Banner     string    `json:"banner,omitempty"`
	Refreshing bool      `json:"refreshing"`
	Running    bool      `json:"running"`
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Name identifies the recurring job.
	Name     string
	Interval time.Duration

	// Context decorates the background context used for refreshes, for
	// example to attach the owner's API token.
	Context func(context.Context) context.Context

	// OnChange is called after every refresh with the new state.
	OnChange func(WatchState)

	Logger *zap.Logger
}

// Watcher keeps an availability snapshot fresh while a page is open.
// Refreshes never overlap; a failed refresh keeps the previous snapshot and
// records a banner.
type Watcher struct {
	engine    Refresher
	scheduler Scheduler
	config    WatcherConfig
	logger    *zap.Logger

	refreshMu sync.Mutex

	mu         sync.Mutex
	draft      Draft
	snapshot   *Snapshot
	banner     string
	refreshing bool
	running    bool
	cancel     func()
}

// NewWatcher creates a stopped watcher.
func NewWatcher(engine Refresher, scheduler Scheduler, config WatcherConfig) *Watcher {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Name == "" {
		config.Name = "availability"
	}
	if config.Context == nil {
		config.Context = func(ctx context.Context) context.Context { return ctx }
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		engine:    engine,
		scheduler: scheduler,
		config:    config,
		logger:    logger.With(zap.String("component", "watcher"), zap.String("job", config.Name)),
	}
}

// Start opens the page for draft: one immediate refresh, then one recurring
// refresh every interval. Starting a running watcher only updates the draft.
func (w *Watcher) Start(ctx context.Context, draft Draft) (WatchState, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return w.SetDraft(ctx, draft), nil
	}
	w.draft = draft
	w.running = true
	w.mu.Unlock()

	cancel, err := w.scheduler.Every(w.config.Name, w.config.Interval, w.tick)
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return w.State(), err
	}

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	return w.Refresh(ctx), nil
}

// SetDraft replaces the draft and refreshes when the building, date or space
// type changed.
func (w *Watcher) SetDraft(ctx context.Context, draft Draft) WatchState {
	w.mu.Lock()
	changed := w.draft.Filter() != draft.Filter()
	w.draft = draft
	w.mu.Unlock()

	if changed {
		return w.Refresh(ctx)
	}
	return w.State()
}

// Refresh recomputes the snapshot now. It waits for any refresh in progress
// and does nothing once the watcher is stopped.
func (w *Watcher) Refresh(ctx context.Context) WatchState {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.State()
	}
	draft := w.draft
	w.refreshing = true
	w.mu.Unlock()

	snap, err := w.engine.Refresh(ctx, draft)

	w.mu.Lock()
	w.refreshing = false
	if !w.running {
		w.mu.Unlock()
		return w.State()
	}
	if err != nil {
		w.banner = err.Error()
		w.logger.Warn("Availability refresh failed", zap.Error(err))
	} else {
		w.snapshot = &snap
		w.banner = ""
	}
	state := w.stateLocked()
	w.mu.Unlock()

	if w.config.OnChange != nil {
		w.config.OnChange(state)
	}
	return state
}

// DismissBanner clears the error banner.
func (w *Watcher) DismissBanner() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.banner = ""
}

// Stop cancels the recurring refresh. No refresh runs afterwards.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State returns the current state.
func (w *Watcher) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Watcher) stateLocked() WatchState {
	var snap *Snapshot
	if w.snapshot != nil {
		s := *w.snapshot
		snap = &s
	}
	return WatchState{
		Draft:      w.draft,
		Snapshot:   snap,
		Banner:     w.banner,
		Refreshing: w.refreshing,
		Running:    w.running,
	}
}

func (w *Watcher) tick() {
	ctx, cancel := context.WithTimeout(w.config.Context(context.Background()), w.config.Interval)
	defer cancel()
	w.Refresh(ctx)
}
