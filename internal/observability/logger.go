package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal or
	// panic. Anything else means info.
	Level string

	// Format is json, or console/pretty for human-readable output.
	Format string

	// Output is stdout or stderr.
	Output string

	// AddSource annotates entries with file and line.
	AddSource bool

	// TimeFormat formats timestamps; RFC 3339 when empty.
	TimeFormat string
}

// DefaultLoggingConfig returns JSON at info level on stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates the process logger from cfg.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	lc := zerolog.New(writerFor(cfg)).With().Timestamp()
	if cfg.AddSource {
		lc = lc.Caller()
	}
	return lc.Logger().Level(ParseLevel(cfg.Level))
}

func writerFor(cfg LoggingConfig) io.Writer {
	var out io.Writer = os.Stdout
	if strings.EqualFold(strings.TrimSpace(cfg.Output), "stderr") {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: cfg.TimeFormat}
	}
	return out
}

// ParseLevel maps a level name to a zerolog level, accepting "warning" for
// warn. Blank and unknown names yield info.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ForSource tags logger with the provider it serves.
func ForSource(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("source", source).Logger()
}

// FromContext returns logger with the request ID and operation stored in ctx.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	requestID, operation := RequestIDFromContext(ctx), OperationFromContext(ctx)
	if requestID == "" && operation == "" {
		return logger
	}
	lc := logger.With()
	if requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	if operation != "" {
		lc = lc.Str("operation", operation)
	}
	return lc.Logger()
}
