// Package export renders admin lists as downloadable CSV files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

// NA is written for missing values in columns that use a placeholder.
const NA = "N/A"

// Column maps a record to one CSV cell.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Headers returns the header row of cols.
func Headers[T any](cols []Column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// ToCSV renders a header row followed by one row per record. Fields are
// quoted only when they contain a comma, quote or newline.
func ToCSV[T any](rows []T, cols []Column[T]) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Headers(cols)); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			record[i] = c.Value(row)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns "<resource>-<YYYY-MM-DD>.csv" for now.
func Filename(resource string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", resource, now.Format("2006-01-02"))
}

// OrNA returns s, or NA when s is empty.
func OrNA(s string) string {
	if s == "" {
		return NA
	}
	return s
}

// Deref returns *s, or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Date renders the date part of t as YYYY-MM-DD, or missing when t is nil.
func Date(t *time.Time, missing string) string {
	if t == nil || t.IsZero() {
		return missing
	}
	return t.Format("2006-01-02")
}

// DateString trims an ISO timestamp or date string to YYYY-MM-DD.
func DateString(s, missing string) string {
	if s == "" {
		return missing
	}
	if len(s) >= 10 {
		if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return s[:10]
		}
	}
	return s
}

// Clock renders the HH:MM time of t, or missing when t is nil.
func Clock(t *time.Time, missing string) string {
	if t == nil || t.IsZero() {
		return missing
	}
	return t.Format("15:04")
}

// Duration renders minutes as "<H>h <M>m". When minutes is nil it is derived
// from start and end; if either is missing the result is missing.
func Duration(minutes *int, start, end *time.Time, missing string) string {
	var total int
	switch {
	case minutes != nil:
		total = *minutes
	case start != nil && end != nil && !start.IsZero() && !end.IsZero():
		total = int(end.Sub(*start).Minutes())
	default:
		return missing
	}
	if total < 0 {
		return missing
	}
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}
