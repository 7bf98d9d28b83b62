package services

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"
)

var queryEncoder = schema.NewEncoder()

// encodeQuery turns a filter struct with `schema` tags into query parameters.
func encodeQuery(filter any) (url.Values, error) {
	q := url.Values{}
	if err := queryEncoder.Encode(filter, q); err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	return q, nil
}
