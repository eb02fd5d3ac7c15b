package csvstore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/ports"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "quotes"

const (
	fieldTimestamp = "timestamp"
	fieldText      = "text"
	fieldAuthor    = "author"
)

var quoteFields = []string{fieldTimestamp, fieldText, fieldAuthor}

// Compile-time interface checks.
var (
	_ ports.QuoteStore    = (*QuoteStore)(nil)
	_ ports.HealthChecker = (*QuoteStore)(nil)
)

// QuoteStoreConfig holds configuration for the flat-file quote store.
type QuoteStoreConfig struct {
	// Dir is the directory holding the table file. Empty means the working directory.
	Dir string

	// Table is the file name without extension. Defaults to DefaultTable.
	Table string

	// Logger for store operations. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock supplies the timestamp for quotes created without one.
	Clock func() time.Time
}

// QuoteStore stores quotes in a CSV table.
type QuoteStore struct {
	table  *Table
	logger *slog.Logger
	clock  func() time.Time
}

// NewQuoteStore opens or creates the quote table.
func NewQuoteStore(cfg QuoteStoreConfig) (*QuoteStore, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	table, err := NewTable(cfg.Dir, cfg.Table, quoteFields)
	if err != nil {
		return nil, err
	}

	return &QuoteStore{
		table:  table,
		logger: cfg.Logger.With(slog.String("store", "csv")),
		clock:  cfg.Clock,
	}, nil
}

// Create appends q and returns the assigned id.
func (s *QuoteStore) Create(ctx context.Context, q domain.Quote) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ts := q.Timestamp
	if ts.IsZero() {
		ts = s.clock().UTC().Truncate(time.Second)
	}

	id, err := s.table.Create(Row{
		fieldTimestamp: domain.FormatTimestamp(ts),
		fieldText:      q.Text,
		fieldAuthor:    q.Author,
	})
	if err != nil {
		return 0, fmt.Errorf("csv create: %w", err)
	}

	s.logger.DebugContext(ctx, "quote appended", slog.Int64("id", id))

	return id, nil
}

// Read returns the quote with the given id.
func (s *QuoteStore) Read(ctx context.Context, id int64) (domain.Quote, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, false, err
	}

	row, found, err := s.table.Read(id)
	if err != nil || !found {
		return domain.Quote{}, false, wrap("read", err)
	}

	q, err := rowToQuote(row)
	if err != nil {
		return domain.Quote{}, false, wrap("read", err)
	}

	return q, true, nil
}

// ReadAll returns every quote in insertion order.
func (s *QuoteStore) ReadAll(ctx context.Context) ([]domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.table.ReadAll()
	if err != nil {
		return nil, wrap("read all", err)
	}

	quotes := make([]domain.Quote, 0, len(rows))

	for _, row := range rows {
		q, err := rowToQuote(row)
		if err != nil {
			return nil, wrap("read all", err)
		}

		quotes = append(quotes, q)
	}

	return quotes, nil
}

// Update rewrites the table with patch applied to the quote.
func (s *QuoteStore) Update(ctx context.Context, id int64, patch domain.QuotePatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found, err := s.table.Update(id, s.patchToRow(patch))
	if err != nil {
		return false, wrap("update", err)
	}

	if found {
		s.logger.DebugContext(ctx, "quote rewritten", slog.Int64("id", id))
	}

	return found, nil
}

// Delete rewrites the table without the quote.
func (s *QuoteStore) Delete(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	found, err := s.table.Delete(id)

	return found, wrap("delete", err)
}

// DeleteAll truncates the table to its header.
func (s *QuoteStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return wrap("delete all", s.table.DeleteAll())
}

// Count returns the number of stored quotes.
func (s *QuoteStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.table.Count()

	return n, wrap("count", err)
}

// Latest returns up to n quotes, newest first. Equal timestamps fall back to
// the higher id first.
func (s *QuoteStore) Latest(ctx context.Context, n int) ([]domain.Quote, error) {
	if n <= 0 {
		n = domain.DefaultLatest
	}

	quotes, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(quotes, func(a, b domain.Quote) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}

		return cmp.Compare(b.ID, a.ID)
	})

	if len(quotes) > n {
		quotes = quotes[:n]
	}

	return quotes, nil
}

// Location returns the table file path.
func (s *QuoteStore) Location() string {
	return s.table.Path()
}

// Name implements ports.HealthChecker.
func (s *QuoteStore) Name() string {
	return "csv-store"
}

// Check implements ports.HealthChecker.
func (s *QuoteStore) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.table.Stat()
}

func rowToQuote(row Row) (domain.Quote, error) {
	ts, err := domain.ParseTimestamp(row[fieldTimestamp])
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		ID:        row.ID(),
		Text:      row[fieldText],
		Author:    row[fieldAuthor],
		Timestamp: ts,
	}, nil
}

func (s *QuoteStore) patchToRow(p domain.QuotePatch) Row {
	row := Row{}

	if !p.Text.IsKeep() {
		row[fieldText] = p.Text.Value()
	}

	if !p.Author.IsKeep() {
		row[fieldAuthor] = p.Author.Value()
	}

	switch {
	case p.Timestamp.IsClear():
		row[fieldTimestamp] = domain.FormatTimestamp(s.clock().UTC().Truncate(time.Second))
	case !p.Timestamp.IsKeep():
		row[fieldTimestamp] = domain.FormatTimestamp(p.Timestamp.Value())
	}

	return row
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("csv %s: %w", op, err)
}
