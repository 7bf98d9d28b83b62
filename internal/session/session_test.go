package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/services"
)

type fakeAuth struct {
	loginFn func(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error)
	meFn    func(ctx context.Context) (*models.User, error)
}

func (f *fakeAuth) Login(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error) {
	return f.loginFn(ctx, kind, creds)
}

func (f *fakeAuth) Me(ctx context.Context) (*models.User, error) {
	return f.meFn(ctx)
}

type fakeRegistry struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{lastSeen: make(map[string]time.Time)}
}

func (r *fakeRegistry) Create(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen[id] = time.Now()
	return nil
}

func (r *fakeRegistry) Touch(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lastSeen[id]; !ok {
		return false, nil
	}
	r.lastSeen[id] = time.Now()
	return true, nil
}

func (r *fakeRegistry) DeleteIdle(_ context.Context, before time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, seen := range r.lastSeen {
		if seen.Before(before) {
			ids = append(ids, id)
			delete(r.lastSeen, id)
		}
	}
	return ids, nil
}

func unauthorized() error {
	return &apiclient.APIError{Status: http.StatusUnauthorized, Kind: apiclient.KindUnauthorized}
}

func signedIn(t *testing.T, role string, me func(ctx context.Context) (*models.User, error)) (*Session, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	auth := &fakeAuth{
		loginFn: func(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error) {
			return &models.LoginResponse{AccessToken: "tok", User: &models.User{ID: "u1", Role: role}}, nil
		},
		meFn: me,
	}
	s := newSession("sess", store, auth, zap.NewNop())
	_, err := s.Login(context.Background(), services.LoginUser, models.Credentials{Email: "a@b.co", Password: "pw"})
	require.NoError(t, err)
	return s, store
}

func TestSession_Init401Asymmetry(t *testing.T) {
	tests := []struct {
		name          string
		role          string
		wantAuth      bool
		wantErr       error
		wantTokenKept bool
	}{
		{name: "admin stays signed in", role: models.RoleAdmin, wantAuth: true, wantTokenKept: true},
		{name: "security stays signed in", role: models.RoleSecurity, wantAuth: true, wantTokenKept: true},
		{name: "user is signed out", role: models.RoleUser, wantAuth: false, wantErr: ErrLoginRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := signedIn(t, tt.role, func(ctx context.Context) (*models.User, error) {
				return nil, unauthorized()
			})

			// A fresh session object over the same storage, as after a restart.
			restored := newSession("sess", store, s.auth, zap.NewNop())
			err := restored.Init(context.Background())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAuth, restored.Authenticated())

			_, ok, _ := store.Get(context.Background(), "sess", KeyToken)
			assert.Equal(t, tt.wantTokenKept, ok)
		})
	}
}

func TestSession_InitRefreshesUser(t *testing.T) {
	s, _ := signedIn(t, models.RoleUser, nil)
	s.auth.(*fakeAuth).meFn = func(ctx context.Context) (*models.User, error) {
		return &models.User{ID: "u1", FirstName: "Ada"}, nil
	}

	require.NoError(t, s.Init(context.Background()))
	assert.True(t, s.Authenticated())
	assert.Equal(t, "Ada", s.User().FirstName)
	assert.Equal(t, models.RoleUser, s.User().Role)
}

func TestSession_InitWithoutToken(t *testing.T) {
	called := false
	s := newSession("empty", NewMemoryStore(), &fakeAuth{meFn: func(ctx context.Context) (*models.User, error) {
		called = true
		return nil, nil
	}}, zap.NewNop())

	require.NoError(t, s.Init(context.Background()))
	assert.False(t, called)
	assert.False(t, s.Authenticated())
}

func TestSession_HandleAPIError(t *testing.T) {
	forbidden := &apiclient.APIError{Status: http.StatusForbidden, Kind: apiclient.KindForbidden}

	tests := []struct {
		name     string
		role     string
		err      error
		redirect string
		authed   bool
	}{
		{name: "user 401 clears", role: models.RoleUser, err: unauthorized(), redirect: LoginPath, authed: false},
		{name: "user 403 keeps", role: models.RoleUser, err: forbidden, authed: true},
		{name: "admin 401 keeps", role: models.RoleAdmin, err: unauthorized(), authed: true},
		{name: "other errors keep", role: models.RoleUser, err: errors.New("boom"), authed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := signedIn(t, tt.role, nil)
			assert.Equal(t, tt.redirect, s.HandleAPIError(context.Background(), tt.err))
			assert.Equal(t, tt.authed, s.Authenticated())
		})
	}
}

func TestResolveRole(t *testing.T) {
	signed := func(role string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": role}).SignedString([]byte("k"))
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name string
		resp *models.LoginResponse
		kind services.LoginKind
		want string
	}{
		{name: "from user", resp: &models.LoginResponse{AccessToken: signed("user"), User: &models.User{Role: "admin"}}, kind: services.LoginUser, want: "admin"},
		{name: "from claim", resp: &models.LoginResponse{AccessToken: signed("security")}, kind: services.LoginUser, want: "security"},
		{name: "from admin flow", resp: &models.LoginResponse{AccessToken: "opaque"}, kind: services.LoginAdmin, want: "admin"},
		{name: "from user flow", resp: &models.LoginResponse{AccessToken: "opaque"}, kind: services.LoginUser, want: "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRole(tt.resp, tt.kind))
		})
	}
}

func TestSession_NotificationDismissal(t *testing.T) {
	s := newSession("n", NewMemoryStore(), &fakeAuth{}, zap.NewNop())
	ctx := context.Background()

	dismissed, err := s.NotificationDismissed(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.False(t, dismissed)

	require.NoError(t, s.DismissNotification(ctx, "2026-10-15"))

	dismissed, _ = s.NotificationDismissed(ctx, "2026-10-15")
	assert.True(t, dismissed)
	dismissed, _ = s.NotificationDismissed(ctx, "2026-10-16")
	assert.False(t, dismissed)
}

func TestManager_GetAndExpire(t *testing.T) {
	store := NewMemoryStore()
	registry := newFakeRegistry()
	m := NewManager(store, registry, &fakeAuth{}, time.Hour, nil)
	ctx := context.Background()

	s, created, err := m.Get(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, store.Set(ctx, s.ID(), KeyToken, "tok"))

	again, created, err := m.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, again)

	_, created, err = m.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, created)

	var expired []string
	m.OnExpire(func(id string) { expired = append(expired, id) })
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	ids, err := m.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, ids, expired)

	_, ok, _ := store.Get(ctx, s.ID(), KeyToken)
	assert.False(t, ok)
}

func TestManager_RestoresPersistedSession(t *testing.T) {
	store := NewMemoryStore()
	registry := newFakeRegistry()
	ctx := context.Background()

	first := NewManager(store, registry, &fakeAuth{}, time.Hour, nil)
	s, _, err := first.Get(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, s.ID(), KeyToken, "tok"))
	require.NoError(t, store.Set(ctx, s.ID(), KeyRole, "admin"))

	// A second manager over the same storage stands in for a restart.
	second := NewManager(store, registry, &fakeAuth{}, time.Hour, nil)
	restored, created, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, restored.Authenticated())
	assert.Equal(t, "admin", restored.Role())
	assert.Equal(t, "tok", restored.Token())
}

func TestManager_SignOutHooks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	auth := &fakeAuth{
		loginFn: func(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error) {
			return &models.LoginResponse{AccessToken: "tok", User: &models.User{ID: "u1", Role: models.RoleUser}}, nil
		},
	}
	m := NewManager(store, newFakeRegistry(), auth, time.Hour, nil)

	var closed []string
	m.OnSignOut(func(id string) { closed = append(closed, id) })

	s, _, err := m.Get(ctx, "")
	require.NoError(t, err)
	_, err = s.Login(ctx, services.LoginUser, models.Credentials{Email: "a@b.co", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, []string{s.ID()}, closed)

	_, err = s.Login(ctx, services.LoginUser, models.Credentials{Email: "a@b.co", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, LoginPath, s.HandleAPIError(ctx, unauthorized()))
	assert.Equal(t, []string{s.ID(), s.ID()}, closed)
}
