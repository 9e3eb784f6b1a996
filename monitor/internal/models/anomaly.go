package models

import "time"

// Default values applied to anomaly fields the producer leaves out.
const (
	DefaultCategory = "UNKNOWN"
	DefaultSeverity = "INFO"
	DefaultMessage  = "No message"
)

// Severity labels recognized by presentation. The store treats severity
// as an opaque string.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

// AnomalyEvent is a durable record of a condition reported by the producer.
// ID is assigned by the store on insert and is zero until then.
type AnomalyEvent struct {
	ID         int64     `json:"id" yaml:"id"`
	Category   string    `json:"category" yaml:"category"`
	Severity   string    `json:"severity" yaml:"severity"`
	Message    string    `json:"message" yaml:"message"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
}

// IsCritical reports whether the event carries the critical severity label.
func (e *AnomalyEvent) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// AnomalySummary aggregates anomaly counts recorded by the stats recorder.
type AnomalySummary struct {
	Total      int64            `json:"total"`
	ByCategory map[string]int64 `json:"by_category"`
	BySeverity map[string]int64 `json:"by_severity"`
	LastHour   int64            `json:"last_hour"`
	Today      int64            `json:"today"`
}

// SessionStatus describes the current producer session for the status endpoint.
type SessionStatus struct {
	State       string     `json:"state"`
	PID         int        `json:"pid,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Lines       int64      `json:"lines"`
	Broadcasts  int64      `json:"broadcasts"`
	Anomalies   int64      `json:"anomalies_stored"`
	Subscribers int        `json:"subscribers"`
	LastError   string     `json:"last_error,omitempty"`
}

// HostInfo is the host summary served alongside the live telemetry.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	UptimeSeconds   uint64 `json:"uptime_seconds"`
	Processes       uint64 `json:"processes"`
}
