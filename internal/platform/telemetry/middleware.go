package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jsamuelsen/quotes/telemetry"

// TraceIDHeader echoes the trace of a request back to the caller.
const TraceIDHeader = "X-Trace-ID"

type httpMetrics struct {
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics() (*httpMetrics, error) {
	meter := otel.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{requestDuration: requestDuration, activeRequests: activeRequests}, nil
}

// Tracing returns the otelgin tracing middleware.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// Middleware records OTel request metrics, feeds the Prometheus request
// histogram when prom is non-nil and sets the X-Trace-ID response header.
// Install it after Tracing so the span is already in the request context.
func Middleware(prom *Metrics) gin.HandlerFunc {
	metrics, err := newHTTPMetrics()
	if err != nil {
		otel.Handle(err)
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
			c.Header(TraceIDHeader, span.SpanContext().TraceID().String())
		}

		routeAttrs := metric.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)

		if metrics != nil {
			metrics.activeRequests.Add(ctx, 1, routeAttrs)
			defer metrics.activeRequests.Add(ctx, -1, routeAttrs)
		}

		c.Next()

		elapsed := time.Since(start).Seconds()
		status := c.Writer.Status()

		if metrics != nil {
			metrics.requestDuration.Record(ctx, elapsed, metric.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", c.FullPath()),
				attribute.Int("http.status_code", status),
			))
		}

		if prom != nil {
			prom.httpDuration.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Observe(elapsed)
		}
	}
}
