package handlers

import (
	"net/http"
	"time"

	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/services"
)

// SessionResponse describes the signed-in state of a portal session.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Role          string       `json:"role,omitempty"`
	User          *models.User `json:"user,omitempty"`
}

func sessionResponse(r *http.Request) SessionResponse {
	s := sessionOf(r)
	return SessionResponse{
		Authenticated: s.Authenticated(),
		Role:          s.Role(),
		User:          s.User(),
	}
}

// Login signs the session in through the flow for kind. The token stays on
// the server; the page only learns the user and role.
func Login(kind services.LoginKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds models.Credentials
		if !decodeBody(w, r, &creds) || !validate(w, r, &creds) {
			return
		}

		if _, err := sessionOf(r).Login(r.Context(), kind, creds); err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, sessionResponse(r))
	}
}

// Logout signs the session out.
func Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessionOf(r).Logout(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Me confirms the stored token with the API and returns the session state.
func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessionOf(r).Init(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, sessionResponse(r))
	}
}

// Register creates an employee account from the public sign-up form.
func Register(users *services.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.UserInput
		if !decodeBody(w, r, &in) || !validate(w, r, &in) {
			return
		}

		user, err := users.Register(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, user)
	}
}

// HomeNotification is the daily banner on the home page.
type HomeNotification struct {
	Show    bool   `json:"show"`
	Day     string `json:"day"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

const (
	homeNotificationTitle   = "Planning to come in?"
	homeNotificationMessage = "Desks and offices can be booked one to two days ahead. Remember to check in when you arrive."
)

// GetHomeNotification returns the banner, hidden once dismissed today.
func GetHomeNotification(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := now().Format(time.DateOnly)
		dismissed, err := sessionOf(r).NotificationDismissed(r.Context(), day)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, HomeNotification{
			Show:    !dismissed,
			Day:     day,
			Title:   homeNotificationTitle,
			Message: homeNotificationMessage,
		})
	}
}

// DismissHomeNotification hides the banner for the rest of today.
func DismissHomeNotification(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := now().Format(time.DateOnly)
		if err := sessionOf(r).DismissNotification(r.Context(), day); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
