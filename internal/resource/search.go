package resource

import "strings"

// Filter returns the items for which keep returns true.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Search returns the items where any field contains query, ignoring case.
// An empty query matches everything.
func Search[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Filter(items, func(T) bool { return true })
	}
	return Filter(items, func(it T) bool {
		for _, f := range fields(it) {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	})
}
