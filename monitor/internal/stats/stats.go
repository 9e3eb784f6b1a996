// Package stats keeps Redis-backed anomaly counters.
//
// Several monitor instances may write concurrently. Counters are
// incremented with pipelines and can be read by any instance.
//
// Redis Key Structure:
//
//	anomaly:totals                 - Hash: total, category:{c}, severity:{s}, last_at
//	anomaly:hourly:{YYYYMMDDHH}    - Anomaly count for specific hour (expires 48h)
//	anomaly:daily:{YYYYMMDD}       - Anomaly count for specific day (expires 7d)
//	anomaly:instances              - Hash of monitor instance -> last flush timestamp
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

const (
	totalsKey    = "anomaly:totals"
	instancesKey = "anomaly:instances"

	fieldTotal  = "total"
	fieldLastAt = "last_at"

	categoryPrefix = "category:"
	severityPrefix = "severity:"
)

func hourlyKey(t time.Time) string { return "anomaly:hourly:" + t.UTC().Format("2006010215") }
func dailyKey(t time.Time) string  { return "anomaly:daily:" + t.UTC().Format("20060102") }

// Client records and reads anomaly counters.
type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClientFromRedis creates a client on an existing Redis connection.
// instanceID should be unique per monitor instance (hostname and pid,
// pod name, UUID). The connection stays owned by the caller.
func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Batch holds anomaly counts accumulated between flushes.
type Batch struct {
	Total      int64
	ByCategory map[string]int64
	BySeverity map[string]int64
	LastAt     time.Time
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{
		ByCategory: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}
}

// Add counts events into the batch.
func (b *Batch) Add(events ...*models.AnomalyEvent) {
	for _, e := range events {
		b.Total++
		b.ByCategory[e.Category]++
		b.BySeverity[e.Severity]++
		if e.ObservedAt.After(b.LastAt) {
			b.LastAt = e.ObservedAt
		}
	}
}

// Merge folds other into b.
func (b *Batch) Merge(other *Batch) {
	b.Total += other.Total
	for k, v := range other.ByCategory {
		b.ByCategory[k] += v
	}
	for k, v := range other.BySeverity {
		b.BySeverity[k] += v
	}
	if other.LastAt.After(b.LastAt) {
		b.LastAt = other.LastAt
	}
}

// FlushBatch writes accumulated counts to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *Batch) error {
	if batch.Total == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	pipe := c.redis.Pipeline()

	pipe.HIncrBy(ctx, totalsKey, fieldTotal, batch.Total)
	for category, n := range batch.ByCategory {
		pipe.HIncrBy(ctx, totalsKey, categoryPrefix+category, n)
	}
	for severity, n := range batch.BySeverity {
		pipe.HIncrBy(ctx, totalsKey, severityPrefix+severity, n)
	}
	if !batch.LastAt.IsZero() {
		pipe.HSet(ctx, totalsKey, fieldLastAt, strconv.FormatInt(batch.LastAt.Unix(), 10))
	}

	hk := hourlyKey(now)
	pipe.IncrBy(ctx, hk, batch.Total)
	pipe.Expire(ctx, hk, 48*time.Hour)

	dk := dailyKey(now)
	pipe.IncrBy(ctx, dk, batch.Total)
	pipe.Expire(ctx, dk, 7*24*time.Hour)

	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush anomaly counters: %w", err)
	}
	return nil
}

// Record counts events immediately, without batching.
func (c *Client) Record(ctx context.Context, events []*models.AnomalyEvent) error {
	b := NewBatch()
	b.Add(events...)
	return c.FlushBatch(ctx, b)
}

// Summary reads the current counters.
func (c *Client) Summary(ctx context.Context) (*models.AnomalySummary, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	totalsCmd := pipe.HGetAll(ctx, totalsKey)
	hourCmd := pipe.Get(ctx, hourlyKey(now))
	dayCmd := pipe.Get(ctx, dailyKey(now))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read anomaly counters: %w", err)
	}

	summary := &models.AnomalySummary{
		ByCategory: make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	if totals, err := totalsCmd.Result(); err == nil {
		for field, raw := range totals {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			switch {
			case field == fieldTotal:
				summary.Total = n
			case strings.HasPrefix(field, categoryPrefix):
				summary.ByCategory[strings.TrimPrefix(field, categoryPrefix)] = n
			case strings.HasPrefix(field, severityPrefix):
				summary.BySeverity[strings.TrimPrefix(field, severityPrefix)] = n
			}
		}
	}

	if val, err := hourCmd.Int64(); err == nil {
		summary.LastHour = val
	}
	if val, err := dayCmd.Int64(); err == nil {
		summary.Today = val
	}

	return summary, nil
}
