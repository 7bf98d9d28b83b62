package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an API failure the way the portal surfaces it.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindServer       Kind = "server"
)

var fallbackMessages = map[Kind]string{
	KindNetwork:      "Unable to reach the server. Please try again.",
	KindUnauthorized: "Your session has expired. Please log in again.",
	KindForbidden:    "You do not have permission to perform this action.",
	KindValidation:   "Please check the highlighted fields.",
	KindNotFound:     "The requested resource was not found.",
	KindConflict:     "The request could not be completed.",
	KindServer:       "The server encountered an error. Please try again later.",
}

// FallbackMessage returns the generic user-facing message for a kind.
func FallbackMessage(kind Kind) string {
	return fallbackMessages[kind]
}

// APIError is a failure talking to the remote API, mapped into the portal's
// error taxonomy.
type APIError struct {
	Status  int
	Kind    Kind
	Message string
	// Fields holds per-field validation messages keyed by field name.
	Fields map[string]string
	cause  error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("api %s (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status
	}
	return 0
}

func networkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: FallbackMessage(KindNetwork),
		cause:   err,
	}
}

// kindForStatus maps an HTTP status to an error kind. A 400 carrying field
// detail is treated as validation; other 4xx codes are business-rule conflicts.
func kindForStatus(status int, hasFields bool) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusBadRequest && hasFields:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindConflict
	}
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// decodeError builds an APIError from a non-2xx response body.
func decodeError(status int, body []byte) *APIError {
	message, fields := parseErrorBody(body)
	kind := kindForStatus(status, len(fields) > 0)
	if message == "" {
		message = FallbackMessage(kind)
	}
	return &APIError{
		Status:  status,
		Kind:    kind,
		Message: message,
		Fields:  fields,
	}
}

func parseErrorBody(body []byte) (string, map[string]string) {
	var eb errorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return "", nil
	}

	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil {
			return detail, nil
		}

		var items []validationItem
		if err := json.Unmarshal(eb.Detail, &items); err == nil && len(items) > 0 {
			fields := make(map[string]string, len(items))
			for _, item := range items {
				fields[fieldName(item.Loc)] = item.Msg
			}
			return items[0].Msg, fields
		}

		var nested errorBody
		if err := json.Unmarshal(eb.Detail, &nested); err == nil {
			if nested.Message != "" {
				return nested.Message, nil
			}
			if nested.Error != "" {
				return nested.Error, nil
			}
		}
	}

	if eb.Message != "" {
		return eb.Message, nil
	}
	return eb.Error, nil
}

// fieldName picks the last string element of a validation loc path
// (["body", "email"] -> "email").
func fieldName(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok && s != "" && s != "body" && s != "query" {
			return s
		}
	}
	parts := make([]string, 0, len(loc))
	for _, p := range loc {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ".")
}
