package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/jsamuelsen/quotes/internal/adapters/http"
	"github.com/jsamuelsen/quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/csvstore"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/sqlstore"
	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/platform/telemetry"
	"github.com/jsamuelsen/quotes/internal/ports"
)

func init() {
	// Set Gin to release mode for accurate benchmarks
	gin.SetMode(gin.ReleaseMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCSVStore(b *testing.B) ports.QuoteStore {
	b.Helper()

	store, err := csvstore.NewQuoteStore(csvstore.QuoteStoreConfig{Dir: b.TempDir(), Logger: discardLogger()})
	if err != nil {
		b.Fatal(err)
	}

	return store
}

func newSQLStore(b *testing.B) ports.QuoteStore {
	b.Helper()

	store, err := sqlstore.New(context.Background(), sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(b.TempDir(), "quotes.db"),
		Logger: discardLogger(),
	})
	if err != nil {
		b.Fatal(err)
	}

	b.Cleanup(func() { _ = store.Close() })

	return store
}

// seed adds n quotes through the service.
func seed(b *testing.B, service *app.QuoteService, n int) {
	b.Helper()

	for i := range n {
		q := domain.Quote{Text: fmt.Sprintf("quote number %d", i), Author: fmt.Sprintf("author %d", i%10)}
		if _, err := service.AddQuote(context.Background(), q); err != nil {
			b.Fatal(err)
		}
	}
}

// setupRouter builds the full router over a seeded CSV store.
func setupRouter(b *testing.B, quotes int) *gin.Engine {
	b.Helper()

	service := app.NewQuoteService(app.QuoteServiceConfig{Store: newCSVStore(b), Logger: discardLogger()})
	seed(b, service, quotes)

	reg := prometheus.NewRegistry()
	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		ServiceName:   "quotes",
		HealthHandler: handlers.NewHealthHandler(ports.NewHealthRegistry(), handlers.NewBuildInfo("1.0.0", "abc123", "2024-01-01T00:00:00Z"), reg),
		QuoteHandler:  handlers.NewQuoteHandler(service, nil, ""),
		Metrics:       telemetry.NewMetrics(reg),
	})

	return engine
}

// BenchmarkLiveness measures the liveness probe through the whole middleware chain.
func BenchmarkLiveness(b *testing.B) {
	router := setupRouter(b, 0)
	req := httptest.NewRequest(http.MethodGet, "/-/live", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

// BenchmarkListQuotes measures a paged list over a store of 500 quotes.
// Every request rereads the CSV file.
func BenchmarkListQuotes(b *testing.B) {
	router := setupRouter(b, 500)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes?limit=20", http.NoBody)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", w.Code)
		}
	}
}

// BenchmarkCreateQuote measures adding a quote over HTTP.
func BenchmarkCreateQuote(b *testing.B) {
	router := setupRouter(b, 0)
	body := `{"text":"Benchmarks lie, but less than intuition.","author":"Anonymous"}`

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

// BenchmarkStore_Latest compares the latest query on both backends.
func BenchmarkStore_Latest(b *testing.B) {
	backends := map[string]func(*testing.B) ports.QuoteStore{
		"csv": newCSVStore,
		"sql": newSQLStore,
	}

	for name, open := range backends {
		b.Run(name, func(b *testing.B) {
			service := app.NewQuoteService(app.QuoteServiceConfig{Store: open(b), Logger: discardLogger()})
			seed(b, service, 500)
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := service.Latest(ctx, domain.DefaultLatest); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkStore_Create compares inserts on both backends.
func BenchmarkStore_Create(b *testing.B) {
	backends := map[string]func(*testing.B) ports.QuoteStore{
		"csv": newCSVStore,
		"sql": newSQLStore,
	}

	for name, open := range backends {
		b.Run(name, func(b *testing.B) {
			service := app.NewQuoteService(app.QuoteServiceConfig{Store: open(b), Logger: discardLogger()})
			ctx := context.Background()
			q := domain.Quote{Text: "Measure twice, cut once.", Author: "Proverb"}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := service.AddQuote(ctx, q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
