// Package resource provides a generic cached store over a CRUD-shaped remote
// collection, used by the admin pages.
package resource

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrInFlight is returned when a mutation targets an entity that already has
// one in progress.
var ErrInFlight = errors.New("another change to this item is in progress")

const createKey = "\x00create"

// Backend is the capability set a store needs from a service.
type Backend[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, item T) (T, error)
	Delete(ctx context.Context, id string) error
}

// State is a snapshot of a store.
type State[T any] struct {
	Items    []T       `json:"items"`
	Loading  bool      `json:"loading"`
	Updating bool      `json:"updating"`
	Error    string    `json:"error,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// Option configures a Store.
type Option func(*options)

type options struct {
	loadKey func(context.Context) string
}

// WithLoadKey partitions concurrent loads: only calls whose contexts map to
// the same key share a backend request. Use it when the backend answers
// differently per caller, for example per access token.
func WithLoadKey(fn func(context.Context) string) Option {
	return func(o *options) { o.loadKey = fn }
}

// Store caches a collection and applies mutations through its backend.
type Store[T any] struct {
	name    string
	backend Backend[T]
	idOf    func(T) string
	logger  *zap.Logger
	loadKey func(context.Context) string

	group singleflight.Group

	mu       sync.RWMutex
	items    []T
	loading  bool
	inFlight map[string]struct{}
	lastErr  string
	loadedAt time.Time
}

// NewStore creates a store named name (used in logs).
func NewStore[T any](name string, backend Backend[T], idOf func(T) string, logger *zap.Logger, opts ...Option) *Store[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		name:     name,
		backend:  backend,
		idOf:     idOf,
		loadKey:  o.loadKey,
		logger:   logger.With(zap.String("component", "resource"), zap.String("resource", name)),
		inFlight: make(map[string]struct{}),
	}
}

// State returns a copy of the current state.
func (s *Store[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]T, len(s.items))
	copy(items, s.items)
	return State[T]{
		Items:    items,
		Loading:  s.loading,
		Updating: len(s.inFlight) > 0,
		Error:    s.lastErr,
		LoadedAt: s.loadedAt,
	}
}

// Load fetches the collection. Concurrent calls with the same load key share
// one backend request, which outlives the cancellation of any one caller.
func (s *Store[T]) Load(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	key := "list"
	if s.loadKey != nil {
		key += ":" + s.loadKey(ctx)
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.backend.List(shared)
	})

	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		s.lastErr = err.Error()
		s.logger.Warn("Failed to load", zap.Error(err))
		return []T{}, err
	}

	items, _ := v.([]T)
	s.items = append([]T(nil), items...)
	s.lastErr = ""
	s.loadedAt = time.Now()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Create adds an item. Only one create runs at a time.
func (s *Store[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	if err := s.acquire(createKey); err != nil {
		return zero, err
	}
	defer s.release(createKey)

	created, err := s.backend.Create(ctx, item)
	if err != nil {
		s.fail("create", err)
		return zero, err
	}

	s.mu.Lock()
	s.items = append(s.items, created)
	s.lastErr = ""
	s.mu.Unlock()
	return created, nil
}

// Update replaces the item with the given id.
func (s *Store[T]) Update(ctx context.Context, id string, item T) (T, error) {
	var zero T
	if err := s.acquire(id); err != nil {
		return zero, err
	}
	defer s.release(id)

	updated, err := s.backend.Update(ctx, id, item)
	if err != nil {
		s.fail("update", err)
		return zero, err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.idOf(s.items[i]) == id {
			s.items[i] = updated
			break
		}
	}
	s.lastErr = ""
	s.mu.Unlock()
	return updated, nil
}

// Delete removes the item with the given id.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := s.acquire(id); err != nil {
		return err
	}
	defer s.release(id)

	if err := s.backend.Delete(ctx, id); err != nil {
		s.fail("delete", err)
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	for _, it := range s.items {
		if s.idOf(it) != id {
			kept = append(kept, it)
		}
	}
	s.items = kept
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}

func (s *Store[T]) acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return ErrInFlight
	}
	s.inFlight[key] = struct{}{}
	return nil
}

func (s *Store[T]) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *Store[T]) fail(op string, err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.logger.Warn("Mutation failed", zap.String("op", op), zap.Error(err))
}
