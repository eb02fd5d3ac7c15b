package acl

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jsamuelsen/quotes/internal/adapters/clients"
	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
)

// ServiceName names the remote quote source in errors and health checks.
const ServiceName = "quote-source"

// QuoteSourceConfig contains configuration for the quote source adapter.
type QuoteSourceConfig struct {
	Client *clients.Client
	Logger *slog.Logger
}

// QuoteSource implements ports.QuoteSource on top of clients.Client.
type QuoteSource struct {
	client *clients.Client
	logger *slog.Logger
}

// NewQuoteSource creates the adapter. It panics without a client.
func NewQuoteSource(cfg QuoteSourceConfig) *QuoteSource {
	if cfg.Client == nil {
		panic("acl: QuoteSourceConfig.Client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QuoteSource{client: cfg.Client, logger: logger}
}

// Fetch downloads url and returns the quotes it contains, in order.
func (s *QuoteSource) Fetch(ctx context.Context, url string) ([]domain.Quote, error) {
	resp, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, MapClientError(ServiceName, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, MapStatus(url, resp.StatusCode)
	}

	items, err := decodeQuotes(resp.Body)
	if err != nil {
		return nil, malformed(url, err)
	}

	quotes, err := TranslateSlice(items, translateQuote)
	if err != nil {
		return nil, malformed(url, err)
	}

	s.logger.Log(ctx, logging.LevelTrace, "fetched quotes",
		slog.String("url", url),
		slog.Int("count", len(quotes)),
	)

	return quotes, nil
}

// Name implements ports.HealthChecker.
func (s *QuoteSource) Name() string {
	return ServiceName
}

// Check reports the source unavailable while its circuit breaker is open.
// It does not call the remote, which may be rate limited.
func (s *QuoteSource) Check(context.Context) error {
	if state := s.client.CircuitState(); state == clients.StateOpen {
		return domain.NewUnavailableError(ServiceName, "circuit breaker "+state.String())
	}

	return nil
}
