package messaging

// Subject constants for the monitor message bus.
// Follow the pattern: {domain}.{resource}.{kind}
const (
	// Telemetry fan-out, one subject per message kind
	SubjectTelemetryStats     = "monitor.telemetry.stats"
	SubjectTelemetryProcesses = "monitor.telemetry.processes"
	SubjectTelemetryDisk      = "monitor.telemetry.disk"

	// Process control
	SubjectProcessKilled = "monitor.process.killed" // outcome of a kill request
	SubjectProcessKill   = "monitor.process.kill"   // request/reply kill command

	// SubjectTelemetryAll matches every telemetry subject.
	SubjectTelemetryAll = "monitor.telemetry.>"
)

// Header names attached to relayed messages.
const (
	HeaderEvent     = "Monitor-Event"
	HeaderRequestID = "Monitor-Request-Id"
)
