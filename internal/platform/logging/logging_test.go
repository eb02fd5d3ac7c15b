package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: NewReplaceAttr()}))
}

func TestFromContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	assert.Equal(t, defaultLogger, FromContext(nil))
	assert.Equal(t, defaultLogger, FromContext(context.Background()))

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithContext(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
}

func TestContextEnrichment(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithTraceID(ctx, "trace-456")
	ctx = WithCommand(ctx, "add")

	FromContext(ctx).Info("enriched")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "trace-456", entry["trace_id"])
	assert.Equal(t, "add", entry["command"])
}

func TestSetDefault(t *testing.T) {
	original := defaultLogger
	t.Cleanup(func() { SetDefault(original) })

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	SetDefault(custom)

	assert.Same(t, custom, FromContext(context.Background()))
	assert.Same(t, custom, slog.Default())
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(&Config{Level: "info", Format: "json", Service: "quotes"}))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "info", Format: "json", Service: "quotes", Version: "1.2.3"}, &buf)
	logger.Info("quote added", slog.Int64("id", 7))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "quote added", entry["msg"])
	assert.Equal(t, "quotes", entry["service_name"])
	assert.Equal(t, "1.2.3", entry["service_version"])
	assert.EqualValues(t, 7, entry["id"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "debug", Format: "text", Service: "quotes"}, &buf)
	logger.Debug("listing quotes")

	assert.Contains(t, buf.String(), "listing quotes")
	assert.Contains(t, buf.String(), "service_name=quotes")
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Log(context.Background(), LevelTrace, "hidden too")

	assert.Empty(t, buf.String())

	logger = NewWithWriter(&Config{Level: "trace", Format: "json"}, &buf)
	logger.Log(context.Background(), LevelTrace, "row read")

	assert.Contains(t, buf.String(), "row read")
}

func TestNewWithWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "info", Format: "pretty", Service: "quotes"}, &buf)
	logger.Info("pretty message", slog.String("password", "hunter2"))
	logger.With(slog.String("dsn", "postgres://u:p@db/quotes")).Info("opened")

	output := buf.String()
	assert.Contains(t, output, "pretty message")
	assert.Contains(t, output, "opened")
	assert.NotContains(t, output, "hunter2")
	assert.NotContains(t, output, "u:p@db")
}

func TestNewWithWriter_File(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "quotes.log")

	var buf bytes.Buffer

	logger := NewWithWriter(&Config{
		Level:  "info",
		Format: "json",
		File: FileConfig{
			Enabled:    true,
			Path:       logFile,
			MaxSizeMB:  1,
			MaxBackups: 1,
			MaxAgeDays: 1,
		},
	}, &buf)
	logger.Info("written twice")

	assert.Contains(t, buf.String(), "written twice")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "written twice")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}

	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), "input %q", input)
	}
}

func TestSlogToCharmLevel(t *testing.T) {
	tests := []struct {
		input slog.Level
		want  log.Level
	}{
		{LevelTrace, log.DebugLevel},
		{slog.LevelDebug, log.DebugLevel},
		{slog.LevelInfo, log.InfoLevel},
		{slog.LevelWarn, log.WarnLevel},
		{slog.LevelError, log.ErrorLevel},
		{slog.Level(12), log.ErrorLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, slogToCharmLevel(tt.input), "level %v", tt.input)
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer

	multi := NewMultiHandler(
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)

	assert.True(t, multi.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, multi.Enabled(context.Background(), LevelTrace))

	logger := slog.New(multi).With(slog.String("store", "csv")).WithGroup("quote")
	logger.Info("created", slog.Int64("id", 1))
	logger.Warn("slow write")

	assert.Contains(t, debugBuf.String(), "created")
	assert.Contains(t, debugBuf.String(), `"quote":{"id":1}`)
	assert.Contains(t, debugBuf.String(), `"store":"csv"`)
	assert.NotContains(t, warnBuf.String(), "created")
	assert.Contains(t, warnBuf.String(), "slow write")
}

func TestDefaultRedactOptions(t *testing.T) {
	assert.NotEmpty(t, DefaultRedactOptions())
}

func TestNewReplaceAttr(t *testing.T) {
	tests := []struct {
		key      string
		value    string
		redacted bool
	}{
		{"password", "hunter2", true},
		{"dsn", "host=db user=quotes", true},
		{"token", "abc-token", true},
		{"api_key", "key-value", true},
		{"secret_config", "sensitive-data", true},
		{"auth", "Bearer abc123xyz", true},
		{"location", "postgres://quotes:s3cr3t@db:5432/quotes", true},
		{"location", "host=db password=s3cr3t dbname=quotes", true},
		{"location", "/var/lib/quotes/quotes.csv", false},
		{"author", "Someone", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			var buf bytes.Buffer

			jsonLogger(&buf).Info("test", slog.String(tt.key, tt.value))

			output := buf.String()
			assert.Contains(t, output, tt.key)

			if tt.redacted {
				assert.NotContains(t, output, tt.value)
			} else {
				assert.Contains(t, output, tt.value)
			}
		})
	}
}

func TestContextWithRedaction(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithRequestID(WithContext(context.Background(), jsonLogger(&buf)), "req-9")
	FromContext(ctx).Info("connecting", slog.String("user", "quotes"), slog.String("password", "super-secret"))

	output := buf.String()
	assert.Contains(t, output, "req-9")
	assert.Contains(t, output, `"user":"quotes"`)
	assert.NotContains(t, output, "super-secret")
}
