// Package domain contains core business entities and rules.
package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the textual form used wherever a quote timestamp is stored as text.
const TimestampLayout = "2006-01-02 15:04:05 MST"

// DefaultLatest is the number of quotes returned by a latest query when no count is given.
const DefaultLatest = 5

// Quote is a short text with optional author attribution.
// It has no knowledge of how or where it is stored.
type Quote struct {
	// ID is assigned by the store on creation. Zero means not yet assigned.
	ID int64

	// Text is the quotation itself. Must not be empty.
	Text string

	// Author is who said or wrote the quote. May be empty.
	Author string

	// Timestamp is the creation time in UTC, at second precision.
	Timestamp time.Time
}

// HasID reports whether the quote has been assigned an id by a store.
func (q Quote) HasID() bool {
	return q.ID != 0
}

// Equal compares the quote contents. The id is not part of the comparison.
func (q Quote) Equal(other Quote) bool {
	return q.Text == other.Text &&
		q.Author == other.Author &&
		q.Timestamp.Equal(other.Timestamp)
}

// Validate checks the quote can be stored.
func (q Quote) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrMissingText
	}

	return nil
}

// FormatTimestamp renders t in TimestampLayout after converting it to UTC.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout value. An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, NewValidationErrorWithValue("timestamp", err.Error(), s)
	}

	return t.UTC(), nil
}
