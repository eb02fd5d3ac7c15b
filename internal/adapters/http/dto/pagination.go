package dto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// DefaultLimit is the default number of items per page.
const DefaultLimit = 20

// MaxLimit is the maximum allowed items per page.
const MaxLimit = 100

// Cursor errors.
var (
	// ErrInvalidCursor is returned when cursor decoding fails.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrNoCursor signals a first page request. It is not a failure.
	ErrNoCursor = errors.New("no cursor provided")
)

// PaginationRequest holds the paging query parameters.
type PaginationRequest struct {
	// Cursor is the opaque NextCursor of a previous page.
	Cursor string `form:"cursor"`

	Limit int `form:"limit" validate:"omitempty,gte=1,lte=100"`
}

// GetLimit returns the limit with defaults applied.
func (p *PaginationRequest) GetLimit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}

	return min(p.Limit, MaxLimit)
}

// AfterID returns the id encoded in the cursor, or 0 for the first page.
func (p *PaginationRequest) AfterID() (int64, error) {
	cursor, err := DecodeCursor(p.Cursor)
	if errors.Is(err, ErrNoCursor) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return cursor.AfterID, nil
}

// PaginatedResponse is one page of items.
type PaginatedResponse[T any] struct {
	Items []T `json:"items"`

	// NextCursor is empty on the last page.
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// Paginate returns the page of items that follow afterID. items must be
// ordered by ascending id.
func Paginate[T any](items []T, afterID int64, limit int, id func(T) int64) *PaginatedResponse[T] {
	start := 0
	for start < len(items) && id(items[start]) <= afterID {
		start++
	}

	items = items[start:]

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	page := &PaginatedResponse[T]{Items: items, HasMore: hasMore}
	if page.Items == nil {
		page.Items = []T{}
	}

	if hasMore && len(items) > 0 {
		page.NextCursor = EncodeCursor(&CursorData{AfterID: id(items[len(items)-1])})
	}

	return page
}

// CursorData is the content of a pagination cursor.
type CursorData struct {
	AfterID int64 `json:"after"`
}

// EncodeCursor encodes cursor data to a base64 string.
func EncodeCursor(data *CursorData) string {
	if data == nil {
		return ""
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(jsonBytes)
}

// DecodeCursor decodes a base64 cursor string.
// Returns ErrNoCursor if the encoded string is empty.
func DecodeCursor(encoded string) (*CursorData, error) {
	if encoded == "" {
		return nil, ErrNoCursor
	}

	jsonBytes, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var data CursorData
	if err := json.Unmarshal(jsonBytes, &data); err != nil || data.AfterID < 0 {
		return nil, ErrInvalidCursor
	}

	return &data, nil
}
