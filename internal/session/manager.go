package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Registry records which portal sessions exist and when they were last used.
type Registry interface {
	Create(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) (bool, error)
	DeleteIdle(ctx context.Context, before time.Time) ([]string, error)
}

// Manager hands out sessions by portal session id and expires idle ones.
type Manager struct {
	store    StateStore
	registry Registry
	auth     Authenticator
	idle     time.Duration
	logger   *zap.Logger
	cron     *cron.Cron
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	onExpire  []func(id string)
	onSignOut []func(id string)
}

// NewManager creates a session manager.
func NewManager(store StateStore, registry Registry, auth Authenticator, idle time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		registry: registry,
		auth:     auth,
		idle:     idle,
		logger:   logger.With(zap.String("component", "session")),
		cron:     cron.New(cron.WithSeconds()),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// OnExpire registers fn to run after a session is expired.
func (m *Manager) OnExpire(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = append(m.onExpire, fn)
}

// OnSignOut registers fn to run after a session signs out, whether by
// logout or because the API rejected its token.
func (m *Manager) OnSignOut(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

func (m *Manager) signedOut(id string) {
	m.mu.Lock()
	hooks := append([]func(string){}, m.onSignOut...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
}

// Start begins the idle-session janitor.
func (m *Manager) Start() error {
	_, err := m.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.ExpireIdle(ctx); err != nil {
			m.logger.Error("Failed to expire idle sessions", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling session expiry: %w", err)
	}

	m.cron.Start()
	m.logger.Info("Session janitor started", zap.Duration("idle", m.idle))
	return nil
}

// Stop stops the janitor.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// Get returns the session for id, creating a new one (with a new id) when id
// is empty or unknown. The second result reports whether it was created.
func (m *Manager) Get(ctx context.Context, id string) (*Session, bool, error) {
	if id != "" {
		known, err := m.registry.Touch(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("touching session: %w", err)
		}
		if known {
			s, err := m.attach(ctx, id)
			return s, false, err
		}
	}

	id = uuid.New().String()
	if err := m.registry.Create(ctx, id); err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}
	m.logger.Debug("Session created", zap.String("session", id))
	s, err := m.attach(ctx, id)
	return s, true, err
}

// attach returns the in-memory session for id, restoring it from the state
// store the first time it is seen by this process.
func (m *Manager) attach(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	s = newSession(id, m.store, m.auth, m.logger)
	s.onSignOut = m.signedOut
	if err := s.restore(ctx); err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = s
	return s, nil
}

// ExpireIdle removes sessions unused for longer than the idle timeout and
// returns their ids.
func (m *Manager) ExpireIdle(ctx context.Context) ([]string, error) {
	ids, err := m.registry.DeleteIdle(ctx, m.now().Add(-m.idle))
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := m.store.Clear(ctx, id); err != nil {
			m.logger.Warn("Failed to clear session state", zap.String("session", id), zap.Error(err))
		}
	}

	m.mu.Lock()
	for _, id := range ids {
		delete(m.sessions, id)
	}
	hooks := append([]func(string){}, m.onExpire...)
	m.mu.Unlock()

	for _, id := range ids {
		for _, fn := range hooks {
			fn(id)
		}
	}

	if len(ids) > 0 {
		m.logger.Info("Expired idle sessions", zap.Int("count", len(ids)))
	}
	return ids, nil
}
