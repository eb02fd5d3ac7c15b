package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/quotes/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotes/internal/platform/config"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
)

const (
	instrumentationName = "github.com/jsamuelsen/quotes/internal/adapters/clients"

	defaultTimeout = 10 * time.Second

	// drainLimit bounds how much of a discarded body is read so the
	// connection can be reused.
	drainLimit = 4 << 10
)

// Config configures a Client.
type Config struct {
	// ServiceName identifies the remote in logs, spans and metrics.
	ServiceName string

	// Timeout applies to each attempt, not to the whole call.
	Timeout time.Duration

	UserAgent string
	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Logger    *slog.Logger

	// Transport overrides the default transport, mostly for tests.
	Transport http.RoundTripper
}

// Client is an HTTP client with retries, a circuit breaker, tracing and metrics.
type Client struct {
	http    *http.Client
	cfg     Config
	cb      *CircuitBreaker
	logger  *slog.Logger
	tracer  trace.Tracer
	latency metric.Float64Histogram
	total   metric.Int64Counter

	// sleep waits between attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client from cfg.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("downstream", c.ServiceName))

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:   c.Circuit.MaxFailures,
		Cooldown:      c.Circuit.Timeout,
		HalfOpenLimit: c.Circuit.HalfOpenLimit,
	})
	cb.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	meter := otel.Meter(instrumentationName)

	latency, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of calls to the remote quote source"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	total, err := meter.Int64Counter(
		"http.client.request.total",
		metric.WithDescription("Calls to the remote quote source"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	transport := c.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		http:    &http.Client{Timeout: c.Timeout, Transport: transport},
		cfg:     c,
		cb:      cb,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		latency: latency,
		total:   total,
		sleep:   sleepContext,
	}, nil
}

// Get fetches url. See Do.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	return c.Do(ctx, req)
}

// Do sends a body-less request, retrying transport errors, 5xx and 429
// responses with exponential backoff. Any other response is returned to the
// caller, who must close its body. When attempts run out the error wraps
// ErrMaxRetriesExceeded and, if the last attempt got a response, a *StatusError.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("downstream", c.cfg.ServiceName),
		slog.String("url", req.URL.Redacted()),
	)

	if err := c.cb.Allow(); err != nil {
		c.record(ctx, req.Method, 0, start, "circuit_open")
		logger.WarnContext(ctx, "request blocked by circuit breaker")

		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method+" "+c.cfg.ServiceName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.Redacted()),
			attribute.String("peer.service", c.cfg.ServiceName),
		),
	)
	defer span.End()

	c.setHeaders(ctx, req)

	resp, err := c.attempt(ctx, req, logger)
	if err != nil {
		// A caller giving up says nothing about the remote's health.
		c.cb.Report(errors.Is(err, context.Canceled))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.record(ctx, req.Method, 0, start, "error")
		logger.WarnContext(ctx, "request failed", slog.Any("error", err))

		return nil, err
	}

	c.cb.Report(true)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(resp.StatusCode))
	}

	c.record(ctx, req.Method, resp.StatusCode, start, strconv.Itoa(resp.StatusCode/100)+"xx")
	logger.Log(ctx, logging.LevelTrace, "request complete",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for n := 0; n < c.cfg.Retry.MaxAttempts; n++ {
		if n > 0 {
			wait := c.backoff(n)
			if ra, ok := retryAfter(lastErr); ok {
				wait = min(ra, c.cfg.Retry.MaxInterval)
			}

			logger.DebugContext(ctx, "retrying request",
				slog.Int("attempt", n+1),
				slog.Duration("backoff", wait),
			)

			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			if !isRetryableError(err) {
				return nil, err
			}

			lastErr = err

			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastErr = &retryableResponse{status: &StatusError{Code: resp.StatusCode}, after: parseRetryAfter(resp)}

		drain(resp.Body)
	}

	var rr *retryableResponse
	if errors.As(lastErr, &rr) {
		lastErr = rr.status
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// CircuitState returns the state of the client's circuit breaker.
func (c *Client) CircuitState() State {
	return c.cb.State()
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// backoff is InitialInterval * Multiplier^(n-1), capped at MaxInterval, with jitter.
func (c *Client) backoff(n int) time.Duration {
	r := c.cfg.Retry

	d := float64(r.InitialInterval) * math.Pow(r.Multiplier, float64(n-1))
	if ceiling := float64(r.MaxInterval); ceiling > 0 && d > ceiling {
		d = ceiling
	}

	jitter := d * r.JitterFactor * (rand.Float64()*2 - 1) //nolint:gosec // jitter needs no crypto randomness

	return time.Duration(d + jitter)
}

func (c *Client) record(ctx context.Context, method string, status int, start time.Time, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.cfg.ServiceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	c.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	c.total.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type retryableResponse struct {
	status *StatusError
	after  time.Duration
}

func (r *retryableResponse) Error() string { return r.status.Error() }
func (r *retryableResponse) Unwrap() error { return r.status }

func retryAfter(err error) (time.Duration, bool) {
	var rr *retryableResponse
	if errors.As(err, &rr) && rr.after > 0 {
		return rr.after, true
	}

	return 0, false
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}

	return time.Duration(secs) * time.Second
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}

func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, drainLimit)
	_ = body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
