package domain

import (
	"strings"
	"time"
)

type fieldState uint8

const (
	fieldKeep fieldState = iota
	fieldSet
	fieldClear
)

// Field is one attribute of a partial update. The zero value leaves the
// attribute untouched.
type Field[T any] struct {
	state fieldState
	value T
}

// Keep leaves the attribute as it is.
func Keep[T any]() Field[T] { return Field[T]{} }

// Set replaces the attribute with v.
func Set[T any](v T) Field[T] { return Field[T]{state: fieldSet, value: v} }

// Clear resets the attribute to its zero value.
func Clear[T any]() Field[T] { return Field[T]{state: fieldClear} }

// IsKeep reports whether the attribute is left untouched.
func (f Field[T]) IsKeep() bool { return f.state == fieldKeep }

// IsClear reports whether the attribute is reset.
func (f Field[T]) IsClear() bool { return f.state == fieldClear }

// Value returns the new value. Cleared fields yield the zero value.
func (f Field[T]) Value() T {
	if f.state == fieldSet {
		return f.value
	}

	var zero T

	return zero
}

// Apply returns the attribute after applying the field to current.
func (f Field[T]) Apply(current T) T {
	if f.state == fieldKeep {
		return current
	}

	return f.Value()
}

// QuotePatch describes a partial update of a quote.
type QuotePatch struct {
	Text      Field[string]
	Author    Field[string]
	Timestamp Field[time.Time]
}

// IsEmpty reports whether the patch changes nothing.
func (p QuotePatch) IsEmpty() bool {
	return p.Text.IsKeep() && p.Author.IsKeep() && p.Timestamp.IsKeep()
}

// Validate rejects patches that would leave a quote without text.
func (p QuotePatch) Validate() error {
	if p.Text.IsKeep() {
		return nil
	}

	if strings.TrimSpace(p.Text.Value()) == "" {
		return ErrMissingText
	}

	return nil
}

// ApplyTo returns q with the patch applied. The id never changes.
func (p QuotePatch) ApplyTo(q Quote) Quote {
	q.Text = p.Text.Apply(q.Text)
	q.Author = p.Author.Apply(q.Author)
	q.Timestamp = p.Timestamp.Apply(q.Timestamp)

	return q
}
