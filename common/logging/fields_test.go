package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestStringFields(t *testing.T) {
	tests := []struct {
		name     string
		attr     slog.Attr
		key      string
		expected string
	}{
		{"service", Service("monitor"), FieldService, "monitor"},
		{"component", Component("realtime"), FieldComponent, "realtime"},
		{"kind", Kind("stats"), FieldKind, "stats"},
		{"subscriber", SubscriberID("sub-1"), FieldSubscriberID, "sub-1"},
		{"subject", Subject("monitor.telemetry.stats"), FieldSubject, "monitor.telemetry.stats"},
		{"state", State("running"), FieldState, "running"},
		{"stream", Stream("stderr"), FieldStream, "stderr"},
		{"method", Method("POST"), FieldMethod, "POST"},
		{"path", Path("/api/v1/anomalies"), FieldPath, "/api/v1/anomalies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.expected {
				t.Errorf("expected value %q, got %q", tt.expected, tt.attr.Value.String())
			}
		})
	}
}

func TestIntFields(t *testing.T) {
	if attr := PID(1234); attr.Key != FieldPID || attr.Value.Int64() != 1234 {
		t.Errorf("unexpected PID attr: %v", attr)
	}
	if attr := Count(3); attr.Key != FieldCount || attr.Value.Int64() != 3 {
		t.Errorf("unexpected Count attr: %v", attr)
	}
	if attr := Duration(1500 * time.Millisecond); attr.Key != FieldDuration || attr.Value.Int64() != 1500 {
		t.Errorf("unexpected Duration attr: %v", attr)
	}
}

func TestError(t *testing.T) {
	attr := Error(errors.New("connection refused"))
	if attr.Key != FieldError {
		t.Errorf("expected key %q, got %q", FieldError, attr.Key)
	}
	if attr.Value.String() != "connection refused" {
		t.Errorf("unexpected value %q", attr.Value.String())
	}

	if Error(nil).Value.String() != "" {
		t.Error("expected empty value for nil error")
	}
}
