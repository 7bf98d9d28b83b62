package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		Timeout:      2 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, nil, opts...)
	return c, srv
}

func TestClient_DecodesJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/buildings/", r.URL.Path)
		assert.Equal(t, "north", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{{"id": "b1", "name": "North"}})
	})

	var out []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := c.Get(context.Background(), "/buildings/", url.Values{"q": {"north"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "North", out[0].Name)
}

func TestClient_BearerInjection(t *testing.T) {
	var gotAuth atomic.Value
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, WithDefaultToken(TokenFunc(func() string { return "default-token" })))

	tests := []struct {
		name     string
		ctx      context.Context
		skipAuth bool
		want     string
	}{
		{name: "default source", ctx: context.Background(), want: "Bearer default-token"},
		{
			name: "context source wins",
			ctx:  WithToken(context.Background(), TokenFunc(func() string { return "session-token" })),
			want: "Bearer session-token",
		},
		{name: "skip auth", ctx: context.Background(), skipAuth: true, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Do(tt.ctx, Request{Method: http.MethodGet, Path: "/auth/me", SkipAuth: tt.skipAuth}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, gotAuth.Load())
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.Get(context.Background(), "/bookings/", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, IsKind(err, KindServer))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestClient_RetrySucceedsAfterTransientFailure(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"available": true})
	})

	var out struct {
		Available bool `json:"available"`
	}
	require.NoError(t, c.Post(context.Background(), "/bookings/check-availability", map[string]string{}, &out))
	assert.True(t, out.Available)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
		msg    string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, kind: KindUnauthorized, msg: FallbackMessage(KindUnauthorized)},
		{name: "forbidden", status: http.StatusForbidden, body: `{"detail":"Admins only"}`, kind: KindForbidden, msg: "Admins only"},
		{name: "not found", status: http.StatusNotFound, body: `{"detail":"Booking not found"}`, kind: KindNotFound, msg: "Booking not found"},
		{name: "conflict", status: http.StatusConflict, body: `{"detail":"Space already booked"}`, kind: KindConflict, msg: "Space already booked"},
		{name: "bad request without fields", status: http.StatusBadRequest, body: `{"message":"Booking window closed"}`, kind: KindConflict, msg: "Booking window closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := c.Get(context.Background(), "/x", nil, nil)
			require.Error(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.msg, apiErr.Message)
		})
	}
}

func TestClient_ValidationFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[
			{"loc":["body","mobile"],"msg":"must be 10 digits"},
			{"loc":["body","email"],"msg":"value is not a valid email address"}
		]}`))
	})

	err := c.Post(context.Background(), "/users/", map[string]string{}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, "value is not a valid email address", apiErr.Fields["email"])
	assert.Equal(t, "must be 10 digits", apiErr.Fields["mobile"])
	assert.Equal(t, "must be 10 digits", apiErr.Message, "message follows the API's own order")
}

func TestClient_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, MaxAttempts: 3}, nil)

	err := c.Get(context.Background(), "/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNetwork))
	assert.Equal(t, FallbackMessage(KindNetwork), err.(*APIError).Message)
}

func TestClient_SendsJSONBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "b1", body["building_id"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"bk1"}`))
	})

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Post(context.Background(), "/bookings/", map[string]string{"building_id": "b1"}, &out))
	assert.Equal(t, "bk1", out.ID)
}
