package booking

import (
	"context"
	"sync"
	"time"
)

// Registry tracks the open availability watcher of each portal session.
type Registry struct {
	mu       sync.Mutex
	watchers map[string]*Watcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{watchers: make(map[string]*Watcher)}
}

// Open returns the watcher for owner, creating it with create when absent.
func (r *Registry) Open(owner string, create func() *Watcher) *Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watchers[owner]; ok {
		return w
	}
	w := create()
	r.watchers[owner] = w
	return w
}

// Get returns the watcher for owner, if open.
func (r *Registry) Get(owner string) (*Watcher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[owner]
	return w, ok
}

// Close stops and forgets the watcher for owner.
func (r *Registry) Close(owner string) {
	r.mu.Lock()
	w, ok := r.watchers[owner]
	delete(r.watchers, owner)
	r.mu.Unlock()

	if ok {
		w.Stop()
	}
}

// Len returns the number of open watchers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// RefreshAll refreshes every open watcher concurrently, for example after a
// booking was created or cancelled.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	watchers := make([]*Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(w.config.Context(context.WithoutCancel(ctx)), time.Minute)
			defer cancel()
			w.Refresh(wctx)
		}()
	}
	wg.Wait()
}

// CloseAll stops every watcher.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = make(map[string]*Watcher)
	r.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}

// Wizards holds the booking wizard of each portal session.
type Wizards struct {
	mu      sync.Mutex
	wizards map[string]*Wizard
}

// NewWizards creates an empty set.
func NewWizards() *Wizards {
	return &Wizards{wizards: make(map[string]*Wizard)}
}

// Open returns the wizard for owner, creating it with create when absent.
func (s *Wizards) Open(owner string, create func() *Wizard) *Wizard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wizards[owner]; ok {
		return w
	}
	w := create()
	s.wizards[owner] = w
	return w
}

// Close forgets the wizard for owner.
func (s *Wizards) Close(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wizards, owner)
}

// Len returns the number of open wizards.
func (s *Wizards) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wizards)
}
