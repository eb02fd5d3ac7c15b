package middleware

import "context"

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// RequestIDFromContext returns the request ID stored in ctx, or "".
// Outbound clients use it to forward the ID to the services they call.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(ctxKeyRequestID).(string)

	return id
}

// ContextWithRequestID stores a request ID in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
