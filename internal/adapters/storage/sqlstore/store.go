// Package sqlstore keeps quotes in a relational database through sqlx.
// SQLite (mattn/go-sqlite3) and PostgreSQL (lib/pq) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/ports"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "quotes"

var (
	// ErrUnsupportedDriver is returned for drivers other than sqlite3 and postgres.
	ErrUnsupportedDriver = errors.New("unsupported sql driver")

	// ErrInvalidTableName is returned when the table name is not a plain identifier.
	ErrInvalidTableName = errors.New("invalid table name")

	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Compile-time interface checks.
var (
	_ ports.QuoteStore    = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// Config holds configuration for the relational store.
type Config struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string

	// DSN is the data source name passed to the driver.
	DSN string

	// Table defaults to DefaultTable.
	Table string

	// MaxOpenConns caps the pool. SQLite defaults to a single connection.
	MaxOpenConns int

	Logger *slog.Logger
	Clock  func() time.Time
}

// Store implements ports.QuoteStore on top of a SQL database.
type Store struct {
	db     *sqlx.DB
	driver string
	dsn    string
	table  string
	logger *slog.Logger
	clock  func() time.Time
}

type quoteRow struct {
	ID        int64     `db:"id"`
	Text      string    `db:"text"`
	Author    string    `db:"author"`
	Timestamp time.Time `db:"timestamp"`
}

func (r quoteRow) toDomain() domain.Quote {
	return domain.Quote{
		ID:        r.ID,
		Text:      r.Text,
		Author:    r.Author,
		Timestamp: r.Timestamp.UTC(),
	}
}

// New connects to the database and creates the schema when absent.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	if !identPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, cfg.Table)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Connect: %w", err)
	}

	switch {
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	case cfg.Driver == DriverSQLite:
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:     db,
		driver: cfg.Driver,
		dsn:    cfg.DSN,
		table:  cfg.Table,
		logger: cfg.Logger.With(slog.String("store", "sql"), slog.String("driver", cfg.Driver)),
		clock:  cfg.Clock,
	}

	if _, err := db.ExecContext(ctx, s.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Exec schema: %w", err)
	}

	return s, nil
}

func (s *Store) schema() string {
	idColumn, tsType := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	if s.driver == DriverPostgres {
		idColumn, tsType = "BIGSERIAL PRIMARY KEY", "TIMESTAMP"
	}

	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id %[2]s,
	text TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	timestamp %[3]s NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS %[1]s_timestamp_idx ON %[1]s(timestamp);
`, s.table, idColumn, tsType)
}

// inTx runs fn inside a transaction. The transaction is committed when fn
// succeeds and rolled back on error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

// Create inserts q and returns the generated id.
func (s *Store) Create(ctx context.Context, q domain.Quote) (int64, error) {
	ts := q.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	var id int64

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(fmt.Sprintf(
			`INSERT INTO %s (text, author, timestamp) VALUES (?, ?, ?) RETURNING id`, s.table))

		if err := tx.GetContext(ctx, &id, query, q.Text, q.Author, ts.UTC()); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.DebugContext(ctx, "quote inserted", slog.Int64("id", id))

	return id, nil
}

// Read returns the quote with the given id.
func (s *Store) Read(ctx context.Context, id int64) (domain.Quote, bool, error) {
	query := s.db.Rebind(fmt.Sprintf(
		`SELECT id, text, author, timestamp FROM %s WHERE id = ?`, s.table))

	var row quoteRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Quote{}, false, nil
		}

		return domain.Quote{}, false, fmt.Errorf("select quote: %w", err)
	}

	return row.toDomain(), true, nil
}

// ReadAll returns every quote ordered by id.
func (s *Store) ReadAll(ctx context.Context) ([]domain.Quote, error) {
	query := fmt.Sprintf(`SELECT id, text, author, timestamp FROM %s ORDER BY id`, s.table)

	return s.selectQuotes(ctx, query)
}

// Latest returns up to n quotes ordered by timestamp, newest first.
func (s *Store) Latest(ctx context.Context, n int) ([]domain.Quote, error) {
	if n <= 0 {
		n = domain.DefaultLatest
	}

	query := s.db.Rebind(fmt.Sprintf(
		`SELECT id, text, author, timestamp FROM %s ORDER BY timestamp DESC, id DESC LIMIT ?`, s.table))

	return s.selectQuotes(ctx, query, n)
}

func (s *Store) selectQuotes(ctx context.Context, query string, args ...any) ([]domain.Quote, error) {
	var rows []quoteRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select quotes: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(rows))
	for _, r := range rows {
		quotes = append(quotes, r.toDomain())
	}

	return quotes, nil
}

// Update applies the patch to one row.
func (s *Store) Update(ctx context.Context, id int64, patch domain.QuotePatch) (bool, error) {
	var (
		sets []string
		args []any
	)

	if !patch.Text.IsKeep() {
		sets = append(sets, "text = ?")
		args = append(args, patch.Text.Value())
	}

	if !patch.Author.IsKeep() {
		sets = append(sets, "author = ?")
		args = append(args, patch.Author.Value())
	}

	switch {
	case patch.Timestamp.IsClear():
		sets = append(sets, "timestamp = ?")
		args = append(args, s.now())
	case !patch.Timestamp.IsKeep():
		sets = append(sets, "timestamp = ?")
		args = append(args, patch.Timestamp.Value().UTC())
	}

	if len(sets) == 0 {
		_, found, err := s.Read(ctx, id)
		return found, err
	}

	var affected int64

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, s.table, strings.Join(sets, ", ")))

		res, err := tx.ExecContext(ctx, query, append(args, id)...)
		if err != nil {
			return fmt.Errorf("update quote: %w", err)
		}

		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	var affected int64

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table))

		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("delete quote: %w", err)
		}

		affected, err = res.RowsAffected()

		return err
	})

	return affected > 0, err
}

// DeleteAll removes every row in a single statement.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
			return fmt.Errorf("delete quotes: %w", err)
		}

		return nil
	})
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)); err != nil {
		return 0, fmt.Errorf("count quotes: %w", err)
	}

	return n, nil
}

// Location returns the driver and the DSN with credentials removed.
func (s *Store) Location() string {
	return s.driver + ":" + RedactDSN(s.dsn)
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "sql-store"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
