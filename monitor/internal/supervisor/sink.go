package supervisor

import (
	"log/slog"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
)

// Sink receives the producer's diagnostic output, one line per call.
type Sink interface {
	Diagnostic(pid int, line string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pid int, line string)

func (f SinkFunc) Diagnostic(pid int, line string) { f(pid, line) }

// LogSink writes diagnostics to operational logs only.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.OrDefault(logger)}
}

func (s *LogSink) Diagnostic(pid int, line string) {
	metrics.StderrLines.Inc()
	s.logger.Warn("producer diagnostic",
		logging.Stream("stderr"),
		logging.PID(pid),
		slog.String("line", line),
	)
}
