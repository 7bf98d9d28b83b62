// Package services maps portal operations onto the remote P-Connect REST API,
// one service per resource family.
package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pconnect/portal/internal/apiclient"
)

// crud implements list/get/create/update/delete for a REST collection rooted
// at base ("/buildings").
type crud[T any] struct {
	api  *apiclient.Client
	base string
}

func newCRUD[T any](api *apiclient.Client, base string) crud[T] {
	return crud[T]{api: api, base: base}
}

func (c crud[T]) collection() string {
	return c.base + "/"
}

func (c crud[T]) item(id string) string {
	return c.base + "/" + url.PathEscape(id)
}

// List returns every item in the collection.
func (c crud[T]) List(ctx context.Context) ([]T, error) {
	return c.ListWhere(ctx, nil)
}

// ListWhere returns the items matching query.
func (c crud[T]) ListWhere(ctx context.Context, query url.Values) ([]T, error) {
	var items []T
	if err := c.api.Get(ctx, c.collection(), query, &items); err != nil {
		return nil, fmt.Errorf("listing %s: %w", c.base, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Get returns a single item.
func (c crud[T]) Get(ctx context.Context, id string) (T, error) {
	var item T
	if err := c.api.Get(ctx, c.item(id), nil, &item); err != nil {
		return item, fmt.Errorf("getting %s %s: %w", c.base, id, err)
	}
	return item, nil
}

// Create posts a new item and returns the stored version.
func (c crud[T]) Create(ctx context.Context, in T) (T, error) {
	var out T
	if err := c.api.Post(ctx, c.collection(), in, &out); err != nil {
		return out, fmt.Errorf("creating %s: %w", c.base, err)
	}
	return out, nil
}

// Update replaces an item and returns the stored version.
func (c crud[T]) Update(ctx context.Context, id string, in T) (T, error) {
	var out T
	if err := c.api.Put(ctx, c.item(id), in, &out); err != nil {
		return out, fmt.Errorf("updating %s %s: %w", c.base, id, err)
	}
	return out, nil
}

// Delete removes an item.
func (c crud[T]) Delete(ctx context.Context, id string) error {
	if err := c.api.Delete(ctx, c.item(id)); err != nil {
		return fmt.Errorf("deleting %s %s: %w", c.base, id, err)
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
