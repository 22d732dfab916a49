package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	for _, cfg := range []LoggingConfig{
		DefaultLoggingConfig(),
		{Level: "debug", Format: "json", Output: "stdout", AddSource: true},
		{Level: "info", Format: "console", Output: "stderr"},
		{Format: "pretty"},
	} {
		logger := NewLogger(cfg)
		assert.Equal(t, ParseLevel(cfg.Level), logger.GetLevel(), "format %q", cfg.Format)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	return logEntry
}

func TestForSource(t *testing.T) {
	var buf bytes.Buffer
	logger := ForSource(zerolog.New(&buf), "crossref")
	logger.Warn().Msg("provider failed")

	logEntry := decodeEntry(t, &buf)
	assert.Equal(t, "crossref", logEntry["source"])
	assert.Equal(t, "warn", logEntry["level"])
}

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger(LoggingConfig{Level: "warn", Output: "stderr"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestFromContext(t *testing.T) {
	t.Run("copies identifiers from the context", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequestID(context.Background(), "req-9")
		ctx = WithOperation(ctx, OperationResolve)

		logger := FromContext(ctx, ForSource(zerolog.New(&buf), "pubmed"))
		logger.Info().Msg("hello")

		logEntry := decodeEntry(t, &buf)
		assert.Equal(t, "req-9", logEntry["request_id"])
		assert.Equal(t, "resolve", logEntry["operation"])
		assert.Equal(t, "pubmed", logEntry["source"])
	})

	t.Run("adds nothing for a bare context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := FromContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("hello")

		logEntry := decodeEntry(t, &buf)
		assert.NotContains(t, logEntry, "request_id")
		assert.NotContains(t, logEntry, "operation")
	})
}
