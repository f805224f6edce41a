package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_SelectsBackend(t *testing.T) {
	logger, err := New("info", "text")
	require.NoError(t, err)
	_, ok := logger.(*SlogLogger)
	assert.True(t, ok, "text format should use slog")

	logger, err = New("debug", "JSON")
	require.NoError(t, err)
	_, ok = logger.(*ZapLogger)
	assert.True(t, ok, "json format should use zap")
}

func TestSlogLogger_LogMethods(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func(*SlogLogger, string, map[string]any)
		message  string
		fields   map[string]any
		contains []string
	}{
		{
			name:     "debug log",
			logFunc:  (*SlogLogger).Debug,
			message:  "Proxying request",
			fields:   map[string]any{"service": "meals", "path": "/api/meals"},
			contains: []string{"level=DEBUG", "Proxying request", "service=meals", "path=/api/meals"},
		},
		{
			name:     "info log",
			logFunc:  (*SlogLogger).Info,
			message:  "Service registered",
			fields:   map[string]any{"name": "auth", "url": "http://localhost:3001"},
			contains: []string{"level=INFO", "Service registered", "name=auth"},
		},
		{
			name:     "warn log",
			logFunc:  (*SlogLogger).Warn,
			message:  "Rate limit exceeded",
			fields:   map[string]any{"class": "auth", "limit": 10},
			contains: []string{"level=WARN", "Rate limit exceeded", "class=auth", "limit=10"},
		},
		{
			name:     "error log",
			logFunc:  (*SlogLogger).Error,
			message:  "Health check failed",
			fields:   map[string]any{"error": "connection refused"},
			contains: []string{"level=ERROR", "Health check failed", "error=\"connection refused\""},
		},
		{
			name:     "nil fields",
			logFunc:  (*SlogLogger).Info,
			message:  "no fields",
			fields:   nil,
			contains: []string{"level=INFO", "no fields"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewSlogLoggerTo(buf, "debug")

			tt.logFunc(logger, tt.message, tt.fields)

			output := buf.String()
			for _, expected := range tt.contains {
				if !strings.Contains(output, expected) {
					t.Errorf("Expected log output to contain %q, got: %s", expected, output)
				}
			}
		})
	}
}

func TestSlogLogger_LogLevels(t *testing.T) {
	tests := []struct {
		level     string
		shouldLog []bool // debug, info, warn, error
	}{
		{"debug", []bool{true, true, true, true}},
		{"info", []bool{false, true, true, true}},
		{"warn", []bool{false, false, true, true}},
		{"error", []bool{false, false, false, true}},
		{"bogus", []bool{false, true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewSlogLoggerTo(buf, tt.level)
			calls := []func(string, map[string]any){logger.Debug, logger.Info, logger.Warn, logger.Error}

			for i, call := range calls {
				buf.Reset()
				call("message", nil)
				hasOutput := buf.Len() > 0
				if hasOutput != tt.shouldLog[i] {
					t.Errorf("call %d at level %s: output=%v, want %v", i, tt.level, hasOutput, tt.shouldLog[i])
				}
			}
		})
	}
}

func TestFieldsToArgs(t *testing.T) {
	assert.Empty(t, fieldsToArgs(nil))
	assert.Len(t, fieldsToArgs(map[string]any{"a": 1, "b": "x"}), 2)
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	require.NotNil(t, logger)

	logger.Debug("debug", map[string]any{"key": "value"})
	logger.Info("info", nil)
	logger.Warn("warn", nil)
	logger.Error("error", nil)
}

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.Warn("Remote token verification failed", map[string]any{
		"reason": "timeout",
		"status": 0,
	})
	logger.Debug("Local token verification failed", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "Remote token verification failed", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "timeout", ctx["reason"])
	assert.EqualValues(t, 0, ctx["status"])

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, zapLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, zapLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, zapLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(""))
}

func TestSlogLogger_ConcurrentLogging(t *testing.T) {
	buf := &safeBuffer{}
	logger := NewSlogLoggerTo(buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("concurrent log", map[string]any{"worker": id})
			logger.Debug("filtered", nil)
		}(i)
	}
	wg.Wait()

	output := buf.String()
	assert.Equal(t, 10, strings.Count(output, "concurrent log"))
	assert.NotContains(t, output, "filtered")
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func BenchmarkSlogLogger_Info(b *testing.B) {
	logger := NewSlogLoggerTo(&bytes.Buffer{}, "info")
	fields := map[string]any{
		"service": "meals",
		"status":  200,
		"cached":  true,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", fields)
	}
}
