// Package bridge connects the producer's output to subscribers and the
// anomaly store.
//
// For each stdout line the bridge decodes, broadcasts, and then (for
// stats lines only) extracts and persists anomalies. Lines are handled
// strictly in order on one goroutine, so a slow store delays the next
// line but never the broadcast of the current one. Per-line failures
// are logged and counted; they never end the session.
package bridge

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/anomaly"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
	"github.com/cybermonitor/monitor-stack/monitor/internal/protocol"
	"github.com/cybermonitor/monitor-stack/monitor/internal/supervisor"
)

// Producer is the process lifecycle the bridge drives.
type Producer interface {
	Start(ctx context.Context, cfg supervisor.LaunchConfig) error
	ReadLines(ctx context.Context) iter.Seq[string]
	Stop()
	State() supervisor.State
	Handle() supervisor.ProcessHandle
}

// Publisher fans decoded messages out to subscribers.
type Publisher interface {
	PublishMessage(ctx context.Context, msg protocol.Message) int
	Count() int
}

// AnomalyStore persists extracted anomalies.
type AnomalyStore interface {
	InsertBatch(ctx context.Context, events []*models.AnomalyEvent) error
}

// AnomalyRecorder is told about anomalies after they are stored.
type AnomalyRecorder interface {
	RecordAnomalies(ctx context.Context, events []*models.AnomalyEvent) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRecorder adds a recorder invoked after each successful insert.
func WithRecorder(r AnomalyRecorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// WithClock overrides the clock used to stamp anomalies.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// Bridge runs one producer session.
type Bridge struct {
	producer  Producer
	publisher Publisher
	store     AnomalyStore
	recorder  AnomalyRecorder
	logger    *slog.Logger
	now       func() time.Time

	lines      atomic.Int64
	broadcasts atomic.Int64
	stored     atomic.Int64

	mu      sync.Mutex
	lastErr string
}

// New creates a Bridge.
func New(producer Producer, publisher Publisher, store AnomalyStore, opts ...Option) *Bridge {
	b := &Bridge{
		producer:  producer,
		publisher: publisher,
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDefault(b.logger)
	return b
}

// Run starts the producer and handles its output until the stream ends
// or ctx is cancelled. The producer is stopped on every exit path.
// Run returns an error only when the session could not start; a
// producer crash ends the session without error and is not retried.
func (b *Bridge) Run(ctx context.Context, cfg supervisor.LaunchConfig) error {
	if err := b.producer.Start(ctx, cfg); err != nil {
		b.setLastErr(err)
		b.logger.Error("producer session failed to start", logging.Error(err))
		return err
	}
	defer b.producer.Stop()

	pid := b.producer.Handle().PID
	b.logger.Info("producer session started", logging.PID(pid))

	// Lines already read are finished even after cancellation.
	lineCtx := context.WithoutCancel(ctx)
	for line := range b.producer.ReadLines(ctx) {
		b.HandleLine(lineCtx, line)
	}

	b.logger.Info("producer session ended",
		logging.PID(pid),
		slog.Int64("lines", b.lines.Load()),
		slog.Int64("anomalies_stored", b.stored.Load()),
	)
	return nil
}

// HandleLine processes one producer line. It never panics and never
// returns an error.
func (b *Bridge) HandleLine(ctx context.Context, line string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LinePanics.Inc()
			b.logger.Error("recovered panic while handling line", slog.Any("panic", r))
		}
	}()

	b.lines.Add(1)

	msg, err := protocol.Decode(line)
	if err != nil {
		metrics.LinesTotal.WithLabelValues("unknown").Inc()
		b.logger.Debug("ignoring untagged producer line", slog.Int("length", len(line)))
		return
	}
	metrics.LinesTotal.WithLabelValues(msg.Kind.String()).Inc()

	// Broadcast first and unconditionally.
	b.publisher.PublishMessage(ctx, msg)
	b.broadcasts.Add(1)

	if msg.Kind == protocol.KindStats {
		b.persistAnomalies(ctx, msg.Body)
	}
}

func (b *Bridge) persistAnomalies(ctx context.Context, body string) {
	events, err := anomaly.Extract(body, b.now())
	if err != nil {
		metrics.AnomalyParseErrors.Inc()
		b.logger.Warn("could not parse anomalies from stats payload", logging.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}
	metrics.AnomaliesExtracted.Add(float64(len(events)))

	start := time.Now()
	err = b.store.InsertBatch(ctx, events)
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.Inc()
		b.setLastErr(err)
		b.logger.Error("failed to store anomalies",
			logging.Count(len(events)),
			logging.Error(err),
		)
		return
	}

	b.stored.Add(int64(len(events)))
	metrics.AnomaliesStored.Add(float64(len(events)))

	if b.recorder != nil {
		if err := b.recorder.RecordAnomalies(ctx, events); err != nil {
			metrics.StatsErrors.Inc()
			b.logger.Warn("failed to record anomaly counters", logging.Error(err))
		}
	}
}

func (b *Bridge) setLastErr(err error) {
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}

// Status reports the session state and counters.
func (b *Bridge) Status() models.SessionStatus {
	h := b.producer.Handle()
	st := models.SessionStatus{
		State:       b.producer.State().String(),
		PID:         h.PID,
		Lines:       b.lines.Load(),
		Broadcasts:  b.broadcasts.Load(),
		Anomalies:   b.stored.Load(),
		Subscribers: b.publisher.Count(),
	}
	if !h.StartedAt.IsZero() {
		started := h.StartedAt
		st.StartedAt = &started
	}
	if !h.ExitedAt.IsZero() {
		ended := h.ExitedAt
		code := h.ExitCode
		st.EndedAt = &ended
		st.ExitCode = &code
	}

	b.mu.Lock()
	st.LastError = b.lastErr
	b.mu.Unlock()
	return st
}
