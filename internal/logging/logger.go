package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

// New returns the logger selected by format: "json" uses zap, anything else
// the slog text handler.
func New(levelStr, format string) (interfaces.Logger, error) {
	if strings.EqualFold(format, "json") {
		return NewZapLogger(levelStr)
	}
	return NewSlogLogger(levelStr), nil
}

// SlogLogger implements interfaces.Logger using Go's standard slog package.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new logger with the specified level.
func NewSlogLogger(levelStr string) interfaces.Logger {
	return NewSlogLoggerTo(os.Stdout, levelStr)
}

// NewSlogLoggerTo creates a text logger writing to w.
func NewSlogLoggerTo(w io.Writer, levelStr string) *SlogLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(levelStr),
	})

	return &SlogLogger{
		logger: slog.New(handler),
	}
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs debug messages.
func (s *SlogLogger) Debug(msg string, fields map[string]any) {
	s.logger.Debug(msg, fieldsToArgs(fields)...)
}

// Info logs info messages.
func (s *SlogLogger) Info(msg string, fields map[string]any) {
	s.logger.Info(msg, fieldsToArgs(fields)...)
}

// Warn logs warning messages.
func (s *SlogLogger) Warn(msg string, fields map[string]any) {
	s.logger.Warn(msg, fieldsToArgs(fields)...)
}

// Error logs error messages.
func (s *SlogLogger) Error(msg string, fields map[string]any) {
	s.logger.Error(msg, fieldsToArgs(fields)...)
}

// fieldsToArgs converts a map of fields to a slice of slog.Attr.
func fieldsToArgs(fields map[string]any) []any {
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return args
}

// NoOpLogger implements interfaces.Logger but does nothing (useful for testing).
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards all messages.
func NewNoOpLogger() interfaces.Logger {
	return &NoOpLogger{}
}

// Debug does nothing.
func (n *NoOpLogger) Debug(msg string, fields map[string]any) {}

// Info does nothing.
func (n *NoOpLogger) Info(msg string, fields map[string]any) {}

// Warn does nothing.
func (n *NoOpLogger) Warn(msg string, fields map[string]any) {}

// Error does nothing.
func (n *NoOpLogger) Error(msg string, fields map[string]any) {}
