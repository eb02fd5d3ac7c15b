package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotes/internal/adapters/http/middleware"
	"github.com/jsamuelsen/quotes/internal/platform/telemetry"
)

// DefaultRequestTimeout bounds API requests when RouterConfig.Timeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig contains what SetupRouter registers.
type RouterConfig struct {
	// ServiceName names the server spans.
	ServiceName string

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler

	// Metrics receives the request histogram. Nil disables it.
	Metrics *telemetry.Metrics

	// Timeout bounds every /api/v1 request. Negative disables it.
	Timeout time.Duration
}

// SetupRouter installs the middleware and routes on engine.
// Middleware runs in this order:
//  1. Recovery
//  2. Request ID
//  3. OpenTelemetry tracing, then request metrics
//  4. Logging (skips /-/ probes)
//  5. Timeout, on /api/v1 only
//
// Probes live under /-/ and the quote API under /api/v1.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(noRoute)
	engine.NoMethod(noMethod)

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		telemetry.Tracing(cfg.ServiceName),
		telemetry.Middleware(cfg.Metrics),
		middleware.Logging(),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	apiV1 := engine.Group("/api/v1")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	if timeout > 0 {
		apiV1.Use(middleware.Timeout(timeout))
	}

	if cfg.QuoteHandler != nil {
		cfg.QuoteHandler.RegisterQuoteRoutes(apiV1)
	}
}
