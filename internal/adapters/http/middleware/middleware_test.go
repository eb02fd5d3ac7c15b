package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withLogger seeds the request context with a logger writing JSON to buf.
func withLogger(buf *bytes.Buffer) gin.HandlerFunc {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
		c.Next()
	}
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}

	return lines
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		headerID string
	}{
		{name: "generates UUID when no header present"},
		{name: "passes through existing header", headerID: "existing-req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			var ginID, ctxID string

			router := gin.New()
			router.Use(withLogger(&buf), RequestID())
			router.GET("/test", func(c *gin.Context) {
				ginID = GetRequestID(c)
				ctxID = RequestIDFromContext(c.Request.Context())
				logging.FromContext(c.Request.Context()).Info("inside")
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.headerID != "" {
				req.Header.Set(HeaderRequestID, tt.headerID)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)

			header := w.Header().Get(HeaderRequestID)
			assert.Equal(t, header, ginID)
			assert.Equal(t, header, ctxID)

			if tt.headerID != "" {
				assert.Equal(t, tt.headerID, header)
			} else {
				_, err := uuid.Parse(header)
				assert.NoError(t, err)
			}

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, header, lines[0]["request_id"])
		})
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))

	c.Set(ContextKeyRequestID, 42)
	assert.Empty(t, GetRequestID(c))
}

func TestRequestIDFromContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(nil)) //nolint:staticcheck // nil context is handled

	ctx := ContextWithRequestID(context.Background(), "550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", RequestIDFromContext(ctx))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
		wantPath  string
	}{
		{"success", "/api/v1/quotes", http.StatusOK, "INFO", "/api/v1/quotes"},
		{"query string kept", "/api/v1/quotes?author=A", http.StatusOK, "INFO", "/api/v1/quotes?author=A"},
		{"client error", "/api/v1/quotes", http.StatusNotFound, "WARN", "/api/v1/quotes"},
		{"server error", "/api/v1/quotes", http.StatusInternalServerError, "ERROR", "/api/v1/quotes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			router := gin.New()
			router.Use(withLogger(&buf), Logging())
			router.GET("/api/v1/quotes", func(c *gin.Context) { c.Status(tt.status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.wantLevel, lines[0]["level"])
			assert.Equal(t, tt.wantPath, lines[0]["path"])
			assert.Equal(t, "/api/v1/quotes", lines[0]["route"])
			assert.InDelta(t, float64(tt.status), lines[0]["status"], 0)
		})
	}
}

func TestLogging_SkipsProbes(t *testing.T) {
	var buf bytes.Buffer

	router := gin.New()
	router.Use(withLogger(&buf), Logging())
	router.GET("/-/live", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/live", nil))

	assert.Zero(t, buf.Len())
}

func TestRecovery(t *testing.T) {
	t.Run("normal request passes through", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("panicking handler returns 500", func(t *testing.T) {
		var buf bytes.Buffer

		router := gin.New()
		router.Use(withLogger(&buf), Recovery())
		router.GET("/test", func(*gin.Context) { panic("something went wrong") })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)

		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.ErrorCodeInternal, resp.Error.Code)

		lines := logLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "panic recovered", lines[0]["msg"])
		assert.Equal(t, "something went wrong", lines[0]["error"])
	})

	t.Run("panic after write keeps status", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusAccepted, "partial")
			panic("late")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})
}

func TestTimeout_SetsContextDeadline(t *testing.T) {
	var deadline time.Time

	var hasDeadline bool

	router := gin.New()
	router.Use(Timeout(50 * time.Millisecond))
	router.GET("/test", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	start := time.Now()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}
