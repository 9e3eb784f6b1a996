package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/cybermonitor/monitor-stack/common/middleware"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  slog.Level
		format string
	}{
		{name: "json format with info level", level: slog.LevelInfo, format: "json"},
		{name: "text format with debug level", level: slog.LevelDebug, format: "text"},
		{name: "default format (json) with error level", level: slog.LevelError, format: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil || logger.Logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestNewWithWriter_Format(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, slog.LevelInfo, "text").Info("producer started", PID(42))
	if !strings.Contains(buf.String(), "pid=42") {
		t.Errorf("expected text output with pid=42, got: %s", buf.String())
	}

	buf.Reset()
	NewWithWriter(&buf, slog.LevelInfo, "json").Info("producer started", PID(42))
	if !strings.Contains(buf.String(), `"pid":42`) {
		t.Errorf("expected json output with pid, got: %s", buf.String())
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("info record should be filtered at warn level: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := middleware.WithRequestID(context.Background(), "test-req-123")
	logger.InfoContext(ctx, "listing anomalies")

	if !strings.Contains(buf.String(), `"request_id":"test-req-123"`) {
		t.Errorf("expected request ID in log output, got: %s", buf.String())
	}

	buf.Reset()
	logger.WarnContext(context.Background(), "no request")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id in output: %s", buf.String())
	}
}

func TestErrorContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelError, "json")
	logger.ErrorContext(context.Background(), "insert failed", "error", "boom")

	output := buf.String()
	if !strings.Contains(output, "insert failed") || !strings.Contains(output, "ERROR") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json").With(Service("monitor"))
	logger.Info("hello")

	if !strings.Contains(buf.String(), `"service":"monitor"`) {
		t.Errorf("expected service attribute, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != slog.Default() {
		t.Error("expected slog.Default() for nil logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if OrDefault(l) != l {
		t.Error("expected the given logger back")
	}
}
