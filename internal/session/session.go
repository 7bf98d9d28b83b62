// Package session owns authentication state for each portal session and the
// registry of live sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/services"
)

// LoginPath is where a user is sent after their session is cleared.
const LoginPath = "/login"

// ErrLoginRequired means the session was cleared and the user must sign in.
var ErrLoginRequired = errors.New("login required")

// Authenticator is the subset of the auth service a session needs.
type Authenticator interface {
	Login(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error)
	Me(ctx context.Context) (*models.User, error)
}

// Session is the authentication context of one portal session.
type Session struct {
	id     string
	store  StateStore
	auth   Authenticator
	logger *zap.Logger

	// onSignOut runs after Logout clears the session.
	onSignOut func(id string)

	mu            sync.RWMutex
	token         string
	user          *models.User
	role          string
	authenticated bool
}

func newSession(id string, store StateStore, auth Authenticator, logger *zap.Logger) *Session {
	return &Session{
		id:     id,
		store:  store,
		auth:   auth,
		logger: logger.With(zap.String("session", id)),
	}
}

// ID returns the portal session id.
func (s *Session) ID() string {
	return s.id
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Context returns ctx carrying this session's token for API calls.
func (s *Session) Context(ctx context.Context) context.Context {
	return apiclient.WithToken(ctx, s)
}

// User returns the cached user, if any.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Role returns the cached role.
func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Authenticated reports whether the session is signed in.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Privileged reports whether the role is admin or security.
func (s *Session) Privileged() bool {
	role := s.Role()
	return role == models.RoleAdmin || role == models.RoleSecurity
}

// Login signs in through the flow for kind and persists the result.
func (s *Session) Login(ctx context.Context, kind services.LoginKind, creds models.Credentials) (*models.LoginResponse, error) {
	resp, err := s.auth.Login(ctx, kind, creds)
	if err != nil {
		return nil, err
	}

	role := resolveRole(resp, kind)
	if resp.User != nil && resp.User.Role == "" {
		resp.User.Role = role
	}

	s.mu.Lock()
	s.token = resp.AccessToken
	s.user = resp.User
	s.role = role
	s.authenticated = true
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("Signed in", zap.String("role", role))
	return resp, nil
}

// Init restores the session from storage and confirms the token with the API.
//
// A 401 from the API while the stored role is admin or security leaves the
// session signed in. For a plain user the same 401 signs the session out and
// returns ErrLoginRequired.
func (s *Session) Init(ctx context.Context) error {
	if err := s.restore(ctx); err != nil {
		return err
	}
	if s.Token() == "" {
		return nil
	}

	user, err := s.auth.Me(s.Context(ctx))
	if err != nil {
		if apiclient.StatusOf(err) == http.StatusUnauthorized {
			if s.Privileged() {
				s.logger.Debug("Ignoring 401 for privileged session")
				return nil
			}
			if clearErr := s.Logout(ctx); clearErr != nil {
				return clearErr
			}
			return fmt.Errorf("confirming session: %w", ErrLoginRequired)
		}
		return fmt.Errorf("confirming session: %w", err)
	}

	s.mu.Lock()
	if user.Role == "" {
		user.Role = s.role
	} else {
		s.role = user.Role
	}
	s.user = user
	s.authenticated = true
	s.mu.Unlock()

	return s.persist(ctx)
}

// HandleAPIError reacts to an error from an authenticated call. A 401 for a
// non-privileged session signs it out and returns the login path. 403 never
// signs out.
func (s *Session) HandleAPIError(ctx context.Context, err error) string {
	if apiclient.StatusOf(err) != http.StatusUnauthorized || s.Privileged() {
		return ""
	}
	if clearErr := s.Logout(ctx); clearErr != nil {
		s.logger.Warn("Failed to clear session", zap.Error(clearErr))
	}
	return LoginPath
}

// Logout forgets the token and user.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.role = ""
	s.authenticated = false
	s.mu.Unlock()

	for _, key := range []string{KeyToken, KeyUser, KeyRole} {
		if err := s.store.Delete(ctx, s.id, key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	if s.onSignOut != nil {
		s.onSignOut(s.id)
	}
	return nil
}

// DismissNotification hides the home-page notification for day (YYYY-MM-DD).
func (s *Session) DismissNotification(ctx context.Context, day string) error {
	if err := s.store.Set(ctx, s.id, KeyDismissed, day); err != nil {
		return fmt.Errorf("saving dismissal: %w", err)
	}
	return nil
}

// NotificationDismissed reports whether the notification was dismissed on day.
func (s *Session) NotificationDismissed(ctx context.Context, day string) (bool, error) {
	v, ok, err := s.store.Get(ctx, s.id, KeyDismissed)
	if err != nil {
		return false, fmt.Errorf("reading dismissal: %w", err)
	}
	return ok && v == day, nil
}

func (s *Session) restore(ctx context.Context) error {
	token, ok, err := s.store.Get(ctx, s.id, KeyToken)
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	if !ok || token == "" {
		s.mu.Lock()
		s.token, s.user, s.role, s.authenticated = "", nil, "", false
		s.mu.Unlock()
		return nil
	}

	role, _, err := s.store.Get(ctx, s.id, KeyRole)
	if err != nil {
		return fmt.Errorf("reading role: %w", err)
	}

	var user *models.User
	raw, ok, err := s.store.Get(ctx, s.id, KeyUser)
	if err != nil {
		return fmt.Errorf("reading user: %w", err)
	}
	if ok && raw != "" {
		user = &models.User{}
		if err := json.Unmarshal([]byte(raw), user); err != nil {
			s.logger.Warn("Discarding unreadable cached user", zap.Error(err))
			user = nil
		}
	}

	s.mu.Lock()
	s.token = token
	s.role = role
	s.user = user
	s.authenticated = true
	s.mu.Unlock()
	return nil
}

func (s *Session) persist(ctx context.Context) error {
	s.mu.RLock()
	token, role, user := s.token, s.role, s.user
	s.mu.RUnlock()

	if err := s.store.Set(ctx, s.id, KeyToken, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := s.store.Set(ctx, s.id, KeyRole, role); err != nil {
		return fmt.Errorf("saving role: %w", err)
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("encoding user: %w", err)
		}
		if err := s.store.Set(ctx, s.id, KeyUser, string(raw)); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}
	}
	return nil
}

// resolveRole picks the role from the response user, then the token's role
// claim, then the login flow.
func resolveRole(resp *models.LoginResponse, kind services.LoginKind) string {
	if resp.User != nil && resp.User.Role != "" {
		return resp.User.Role
	}
	if role := roleClaim(resp.AccessToken); role != "" {
		return role
	}
	switch kind {
	case services.LoginAdmin:
		return models.RoleAdmin
	case services.LoginSecurity:
		return models.RoleSecurity
	default:
		return models.RoleUser
	}
}

// roleClaim reads the "role" claim without verifying the signature. The API
// verifies tokens; the portal only needs the hint.
func roleClaim(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}
