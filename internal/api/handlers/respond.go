// Package handlers provides the HTTP handlers behind each portal page.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/schema"

	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/booking"
	"github.com/pconnect/portal/internal/resource"
	"github.com/pconnect/portal/internal/session"
	"github.com/pconnect/portal/internal/validation"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// ListResponse wraps list pages. A permission failure degrades to an empty
// list with Banner explaining why.
type ListResponse[T any] struct {
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
	Banner string `json:"banner,omitempty"`
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	middleware.WriteJSON(w, http.StatusOK, ListResponse[T]{Items: items, Total: len(items)})
}

// writeListError answers a failed list load. 403 still renders the page.
func writeListError[T any](w http.ResponseWriter, r *http.Request, err error) {
	if apiclient.StatusOf(err) == http.StatusForbidden {
		middleware.WriteJSON(w, http.StatusOK, ListResponse[T]{
			Items:  []T{},
			Banner: apiclient.FallbackMessage(apiclient.KindForbidden),
		})
		return
	}
	writeError(w, r, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}

func decodeQuery(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := queryDecoder.Decode(v, r.URL.Query()); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid query parameters")
		return false
	}
	return true
}

// validate writes a 422 and returns false when v fails validation.
func validate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := validation.Struct(v); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// writeError maps err onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		_, msg := fields.First()
		middleware.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, middleware.ErrValidation, msg, map[string]string(fields))
		return
	}

	var stepErr *booking.ValidationError
	if errors.As(err, &stepErr) {
		middleware.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, middleware.ErrValidation, stepErr.Message,
			map[string]string{stepErr.Field: stepErr.Message})
		return
	}

	if errors.Is(err, resource.ErrInFlight) {
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
		return
	}

	if errors.Is(err, session.ErrLoginRequired) {
		middleware.WriteJSON(w, http.StatusUnauthorized, middleware.ErrorResponse{
			Error:    middleware.ErrUnauthorized,
			Message:  apiclient.FallbackMessage(apiclient.KindUnauthorized),
			Redirect: session.LoginPath,
		})
		return
	}

	apiErr, ok := apiclient.AsAPIError(err)
	if !ok {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "An unexpected error occurred")
		return
	}

	switch apiErr.Kind {
	case apiclient.KindUnauthorized:
		resp := middleware.ErrorResponse{Error: middleware.ErrUnauthorized, Message: apiErr.Message}
		if s := middleware.SessionFrom(r.Context()); s != nil {
			resp.Redirect = s.HandleAPIError(r.Context(), err)
		}
		middleware.WriteJSON(w, http.StatusUnauthorized, resp)
	case apiclient.KindForbidden:
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, apiErr.Message)
	case apiclient.KindValidation:
		middleware.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, middleware.ErrValidation, apiErr.Message, apiErr.Fields)
	case apiclient.KindNotFound:
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, apiErr.Message)
	case apiclient.KindConflict:
		status := apiErr.Status
		if status == 0 {
			status = http.StatusConflict
		}
		middleware.WriteError(w, status, middleware.ErrConflict, apiErr.Message)
	default:
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, apiErr.Message)
	}
}

// sessionOf returns the request's portal session. Routes are wrapped in the
// session middleware, so it is never nil there.
func sessionOf(r *http.Request) *session.Session {
	return middleware.SessionFrom(r.Context())
}
