//go:build integration

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/quotes/internal/adapters/storage/csvstore"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/sqlstore"
	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/ports"
)

func newStores(t *testing.T) map[string]ports.QuoteStore {
	t.Helper()

	csv, err := csvstore.NewQuoteStore(csvstore.QuoteStoreConfig{Dir: t.TempDir(), Logger: discardLogger()})
	require.NoError(t, err)

	sql, err := sqlstore.New(context.Background(), sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "quotes.db"),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })

	return map[string]ports.QuoteStore{"csv": csv, "sql": sql}
}

// TestConcurrent_AddQuote verifies concurrent writers through one service
// never share an id and never lose a row.
func TestConcurrent_AddQuote(t *testing.T) {
	const writers = 20

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			service := app.NewQuoteService(app.QuoteServiceConfig{Store: store, Logger: discardLogger()})

			var (
				mu  sync.Mutex
				ids = make(map[int64]bool, writers)
			)

			g, ctx := errgroup.WithContext(context.Background())

			for i := range writers {
				g.Go(func() error {
					id, err := service.AddQuote(ctx, domain.Quote{Text: fmt.Sprintf("quote %d", i)})
					if err != nil {
						return err
					}

					mu.Lock()
					defer mu.Unlock()

					if ids[id] {
						return fmt.Errorf("id %d assigned twice", id)
					}

					ids[id] = true

					return nil
				})
			}

			require.NoError(t, g.Wait())

			n, err := service.Count(context.Background())
			require.NoError(t, err)
			assert.Equal(t, writers, n)
		})
	}
}

// TestConcurrent_ReadersAndWriters mixes updates, deletes and reads on the
// same rows.
func TestConcurrent_ReadersAndWriters(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			service := app.NewQuoteService(app.QuoteServiceConfig{Store: store, Logger: discardLogger()})

			for i := range 10 {
				_, err := service.AddQuote(ctx, domain.Quote{Text: fmt.Sprintf("quote %d", i), Author: "Someone"})
				require.NoError(t, err)
			}

			var g errgroup.Group

			for id := int64(1); id <= 10; id++ {
				g.Go(func() error {
					if id%2 == 0 {
						return service.DeleteQuote(ctx, id)
					}

					return service.UpdateQuote(ctx, id, domain.QuotePatch{Author: domain.Set("Other")})
				})

				g.Go(func() error {
					_, err := service.ListQuotes(ctx, nil)
					return err
				})
			}

			require.NoError(t, g.Wait())

			author := "Other"
			quotes, err := service.ListQuotes(ctx, &author)
			require.NoError(t, err)
			require.Len(t, quotes, 5)

			for _, q := range quotes {
				assert.Equal(t, int64(1), q.ID%2, "odd ids survive")
			}
		})
	}
}

// TestBackends_Agree runs the same sequence against both stores and compares
// what the service reports.
func TestBackends_Agree(t *testing.T) {
	ctx := context.Background()
	results := make(map[string][]string)

	for name, store := range newStores(t) {
		service := app.NewQuoteService(app.QuoteServiceConfig{Store: store, Logger: discardLogger()})

		for _, text := range []string{"one", "two", "three"} {
			_, err := service.AddQuote(ctx, domain.Quote{Text: text, Author: "A"})
			require.NoError(t, err)
		}

		require.NoError(t, service.UpdateQuote(ctx, 2, domain.QuotePatch{Author: domain.Clear[string]()}))
		require.NoError(t, service.DeleteQuote(ctx, 1))

		err := service.DeleteQuote(ctx, 1)
		require.True(t, domain.IsInvalidQuoteID(err), name)

		quotes, err := service.ListQuotes(ctx, nil)
		require.NoError(t, err)

		for _, q := range quotes {
			results[name] = append(results[name], fmt.Sprintf("%d|%s|%s", q.ID, q.Text, q.Author))
		}
	}

	assert.Equal(t, []string{"2|two|", "3|three|A"}, results["csv"])
	assert.Equal(t, results["csv"], results["sql"])
}
