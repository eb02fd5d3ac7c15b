// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/ports"
)

// QuoteService applies the quote rules on top of a single store.
// It depends on the ports.QuoteStore interface, never on a concrete backend.
type QuoteService struct {
	store  ports.QuoteStore
	logger *slog.Logger
	clock  func() time.Time
}

// QuoteServiceConfig contains configuration for the quote service.
type QuoteServiceConfig struct {
	Store  ports.QuoteStore
	Logger *slog.Logger

	// Clock stamps new quotes. Defaults to time.Now.
	Clock func() time.Time
}

// NewQuoteService creates a new quote service. It panics without a store.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Store == nil {
		panic("app: QuoteServiceConfig.Store is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &QuoteService{
		store:  cfg.Store,
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
}

func (s *QuoteService) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

// AddQuote validates q, stamps it with the current time and stores it.
// Any id or timestamp already set on q is ignored.
func (s *QuoteService) AddQuote(ctx context.Context, q domain.Quote) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	q.ID = 0
	q.Timestamp = s.now()

	id, err := s.store.Create(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to add quote", slog.Any("error", err))
		return 0, fmt.Errorf("adding quote: %w", err)
	}

	s.logger.InfoContext(ctx, "quote added",
		slog.Int64("quote_id", id),
		slog.String("author", q.Author),
	)

	return id, nil
}

// GetQuote returns the quote with the given id.
func (s *QuoteService) GetQuote(ctx context.Context, id int64) (domain.Quote, error) {
	q, found, err := s.store.Read(ctx, id)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("reading quote %d: %w", id, err)
	}

	if !found {
		return domain.Quote{}, domain.NewInvalidQuoteIDError(id)
	}

	return q, nil
}

// ListQuotes returns all quotes, or only those whose author matches exactly
// when author is non-nil.
func (s *QuoteService) ListQuotes(ctx context.Context, author *string) ([]domain.Quote, error) {
	quotes, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing quotes: %w", err)
	}

	if author == nil {
		return quotes, nil
	}

	filtered := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Author == *author {
			filtered = append(filtered, q)
		}
	}

	return filtered, nil
}

// UpdateQuote applies patch to the quote with the given id.
// A cleared timestamp is restamped with the current time.
func (s *QuoteService) UpdateQuote(ctx context.Context, id int64, patch domain.QuotePatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	if patch.Timestamp.IsClear() {
		patch.Timestamp = domain.Set(s.now())
	}

	found, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update quote",
			slog.Int64("quote_id", id),
			slog.Any("error", err),
		)
		return fmt.Errorf("updating quote %d: %w", id, err)
	}

	if !found {
		return domain.NewInvalidQuoteIDError(id)
	}

	s.logger.InfoContext(ctx, "quote updated", slog.Int64("quote_id", id))

	return nil
}

// DeleteQuote removes the quote with the given id.
func (s *QuoteService) DeleteQuote(ctx context.Context, id int64) error {
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting quote %d: %w", id, err)
	}

	if !found {
		return domain.NewInvalidQuoteIDError(id)
	}

	s.logger.InfoContext(ctx, "quote deleted", slog.Int64("quote_id", id))

	return nil
}

// DeleteAll removes every quote.
func (s *QuoteService) DeleteAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("deleting all quotes: %w", err)
	}

	s.logger.InfoContext(ctx, "all quotes deleted")

	return nil
}

// Count returns the number of stored quotes.
func (s *QuoteService) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting quotes: %w", err)
	}

	return n, nil
}

// Latest returns up to n of the most recent quotes. n <= 0 means domain.DefaultLatest.
func (s *QuoteService) Latest(ctx context.Context, n int) ([]domain.Quote, error) {
	if n <= 0 {
		n = domain.DefaultLatest
	}

	quotes, err := s.store.Latest(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("latest quotes: %w", err)
	}

	return quotes, nil
}

// Location describes where quotes are stored.
func (s *QuoteService) Location() string {
	return s.store.Location()
}
