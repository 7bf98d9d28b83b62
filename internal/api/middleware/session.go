package middleware

import (
	"context"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/session"
)

// SessionCookie names the portal session cookie.
const SessionCookie = "pconnect_session"

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the portal session attached by Sessions, or nil.
func SessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// SessionSource hands out sessions by cookie value.
type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, bool, error)
}

// Sessions resolves the portal session from its cookie, issuing a new cookie
// when the session is new.
func Sessions(source SessionSource, secure bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = c.Value
			}

			s, created, err := source.Get(r.Context(), id)
			if err != nil {
				logger.Error("Failed to resolve session", zap.Error(err))
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to load session")
				return
			}
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    s.ID(),
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireAuth rejects signed-out sessions with 401 and a login redirect.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := SessionFrom(r.Context())
		if s == nil || !s.Authenticated() {
			WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:    ErrUnauthorized,
				Message:  "Please log in to continue.",
				Redirect: session.LoginPath,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows signed-in sessions whose role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, SessionFrom(r.Context()).Role()) {
				WriteError(w, http.StatusForbidden, ErrForbidden, "You do not have permission to view this page.")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
