// Package middleware provides the gin middleware of the quote API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/quotes/internal/platform/logging"
)

const (
	// HeaderRequestID is the header carrying the request ID.
	HeaderRequestID = "X-Request-ID"

	// ContextKeyRequestID is the gin.Context key of the request ID.
	ContextKeyRequestID = "request_id"
)

// RequestID returns middleware that takes the request ID from the
// X-Request-ID header, or generates a UUID v4 when the header is absent.
// The ID is echoed in the response and attached to the request context,
// so the context logger and outbound clients carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)

		ctx := ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(logging.WithRequestID(ctx, id))

		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(ContextKeyRequestID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}

	return ""
}
