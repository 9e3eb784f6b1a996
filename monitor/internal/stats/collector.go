package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

// Flusher writes an accumulated batch.
type Flusher interface {
	FlushBatch(ctx context.Context, batch *Batch) error
}

// Collector accumulates anomaly counts in memory and flushes them
// periodically, keeping Redis latency off the line-processing path.
// Safe for concurrent use from multiple goroutines.
type Collector struct {
	flusher       Flusher
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	pending *Batch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector and starts its flush loop.
func NewCollector(flusher Flusher, flushInterval time.Duration, logger *slog.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		flusher:       flusher,
		flushInterval: flushInterval,
		logger:        logging.OrDefault(logger),
		pending:       NewBatch(),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// RecordAnomalies adds stored events to the pending batch. It never blocks
// on Redis and never fails.
func (c *Collector) RecordAnomalies(_ context.Context, events []*models.AnomalyEvent) error {
	if len(events) == 0 {
		return nil
	}
	c.mu.Lock()
	c.pending.Add(events...)
	c.mu.Unlock()
	return nil
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = NewBatch()
	c.mu.Unlock()

	if batch.Total == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.flusher.FlushBatch(ctx, batch); err != nil {
		metrics.StatsErrors.Inc()
		c.logger.Error("failed to flush anomaly counters",
			logging.Count(int(batch.Total)),
			logging.Error(err),
		)
		// Merge back for the next tick.
		c.mu.Lock()
		c.pending.Merge(batch)
		c.mu.Unlock()
		return
	}

	c.logger.Debug("flushed anomaly counters", logging.Count(int(batch.Total)))
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop stops the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the number of anomalies not yet flushed.
func (c *Collector) Pending() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Total
}
