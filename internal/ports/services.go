// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never external DTOs or infrastructure types
//   - Absence is reported with a found flag; domain errors are the service's job
//   - Keep interfaces small and focused
package ports

import (
	"context"

	"github.com/jsamuelsen/quotes/internal/domain"
)

// QuoteStore persists quotes. Both the flat-file and the relational backend
// implement it, and the service is constructed with exactly one of them.
type QuoteStore interface {
	// Create stores q and returns the id assigned to it.
	// q.ID is ignored. A zero q.Timestamp lets the backend pick one.
	Create(ctx context.Context, q domain.Quote) (int64, error)

	// Read returns the quote stored under id. found is false when no such
	// quote exists; that is not an error.
	Read(ctx context.Context, id int64) (q domain.Quote, found bool, err error)

	// ReadAll returns every quote in the backend's natural order.
	ReadAll(ctx context.Context) ([]domain.Quote, error)

	// Update applies patch to the quote stored under id.
	// found is false, and nothing is written, when no such quote exists.
	Update(ctx context.Context, id int64, patch domain.QuotePatch) (found bool, err error)

	// Delete removes the quote stored under id.
	// found is false when no such quote existed.
	Delete(ctx context.Context, id int64) (found bool, err error)

	// DeleteAll removes every quote.
	DeleteAll(ctx context.Context) error

	// Count returns the number of stored quotes.
	Count(ctx context.Context) (int, error)

	// Latest returns up to n quotes, newest timestamp first.
	// n <= 0 means domain.DefaultLatest.
	Latest(ctx context.Context, n int) ([]domain.Quote, error)

	// Location describes where the quotes live, for display.
	Location() string
}

// QuoteSource fetches quotes from a remote service.
type QuoteSource interface {
	// Fetch retrieves the quotes published at url.
	// Returns domain.ErrBadRequest when the response is unusable and
	// domain.ErrUnavailable when the service cannot be reached.
	Fetch(ctx context.Context, url string) ([]domain.Quote, error)
}

// Cache defines the contract for caching operations.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns domain.ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with optional TTL.
	// A TTL of 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error

	// Delete removes a value from the cache.
	// Does not return an error if the key does not exist.
	Delete(ctx context.Context, key string) error
}
