package handlers

import (
	"context"
	"net/http"

	"github.com/pconnect/portal/internal/api/middleware"
)

// Pinger checks a dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck reports whether the state database answers.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status, code := "healthy", http.StatusOK
		if !dbConnected {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		middleware.WriteJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusSources feed the status page.
type StatusSources struct {
	Version      string
	APIBaseURL   string
	StateBackend string
	Sessions     func(ctx context.Context) (int, error)
	Clients      func() int
	Watchers     func() int
	Wizards      func() int
}

// StatusResponse represents the portal status response.
type StatusResponse struct {
	Version       string `json:"version"`
	APIBaseURL    string `json:"api_base_url"`
	StateBackend  string `json:"state_backend"`
	Sessions      int    `json:"sessions"`
	LiveClients   int    `json:"live_clients"`
	OpenWatchers  int    `json:"open_watchers"`
	OpenWizards   int    `json:"open_wizards"`
	SessionsError string `json:"sessions_error,omitempty"`
}

// Status reports portal counters.
func Status(src StatusSources) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version:      src.Version,
			APIBaseURL:   src.APIBaseURL,
			StateBackend: src.StateBackend,
		}
		if src.Sessions != nil {
			n, err := src.Sessions(r.Context())
			if err != nil {
				resp.SessionsError = err.Error()
			}
			resp.Sessions = n
		}
		if src.Clients != nil {
			resp.LiveClients = src.Clients()
		}
		if src.Watchers != nil {
			resp.OpenWatchers = src.Watchers()
		}
		if src.Wizards != nil {
			resp.OpenWizards = src.Wizards()
		}
		middleware.WriteJSON(w, http.StatusOK, resp)
	}
}
