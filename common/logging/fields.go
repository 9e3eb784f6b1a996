package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across components.
const (
	FieldService      = "service"
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldError        = "error"
	FieldPID          = "pid"
	FieldKind         = "kind"
	FieldSubscriberID = "subscriber_id"
	FieldSubject      = "subject"
	FieldCount        = "count"
	FieldState        = "state"
	FieldStream       = "stream"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldDuration     = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute naming a component within a service.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// PID returns a slog attribute for an OS process identifier.
func PID(pid int) slog.Attr {
	return slog.Int(FieldPID, pid)
}

// Kind returns a slog attribute for a telemetry message kind.
func Kind(kind string) slog.Attr {
	return slog.String(FieldKind, kind)
}

// SubscriberID returns a slog attribute for a broadcast subscriber.
func SubscriberID(id string) slog.Attr {
	return slog.String(FieldSubscriberID, id)
}

// Subject returns a slog attribute for a message bus subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Count returns a slog attribute for a number of items.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// State returns a slog attribute for a lifecycle state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Stream returns a slog attribute naming a process output stream.
func Stream(name string) slog.Attr {
	return slog.String(FieldStream, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}
