package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/monitor/internal/broadcast"
	"github.com/cybermonitor/monitor-stack/monitor/internal/metrics"
	"github.com/cybermonitor/monitor-stack/monitor/internal/ratelimit"
)

var (
	ErrInvalidPID  = errors.New("invalid process id")
	ErrRateLimited = errors.New("kill rate limit exceeded")
)

// Killer terminates an OS process.
type Killer interface {
	Kill(ctx context.Context, pid int32) error
}

// KillerFunc adapts a function to Killer.
type KillerFunc func(ctx context.Context, pid int32) error

func (f KillerFunc) Kill(ctx context.Context, pid int32) error { return f(ctx, pid) }

// OSKiller kills processes through gopsutil.
type OSKiller struct{}

func (OSKiller) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

// Notifier delivers ProcessKilled events.
type Notifier interface {
	Publish(ctx context.Context, ev broadcast.Event) int
	SendTo(ctx context.Context, subscriberID string, ev broadcast.Event) error
}

// KillResult mirrors the ProcessKilled event payload.
type KillResult struct {
	PID     int32  `json:"pid"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProcessService carries out kill requests from subscribers and the API.
type ProcessService struct {
	killer   Killer
	notifier Notifier
	limiter  ratelimit.RateLimiter
	logger   *slog.Logger
}

// NewProcessService creates a ProcessService. A nil killer uses OSKiller,
// a nil limiter admits every call.
func NewProcessService(killer Killer, notifier Notifier, limiter ratelimit.RateLimiter, logger *slog.Logger) *ProcessService {
	if killer == nil {
		killer = OSKiller{}
	}
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &ProcessService{
		killer:   killer,
		notifier: notifier,
		limiter:  limiter,
		logger:   logging.OrDefault(logger),
	}
}

// Kill terminates pid on behalf of callerID.
//
// A successful kill is announced to every subscriber. A failure is sent
// only to the caller, when callerID names a connected subscriber, and is
// also returned.
func (s *ProcessService) Kill(ctx context.Context, pid int32, callerID string) (KillResult, error) {
	if pid <= 0 {
		return s.fail(ctx, pid, callerID, ErrInvalidPID)
	}

	key := "kill:" + callerID
	if callerID == "" {
		key = "kill:anonymous"
	}
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// An unreachable limiter does not block the operation.
		s.logger.Warn("kill rate limit check failed", logging.Error(err))
	} else if !allowed {
		return s.fail(ctx, pid, callerID, ErrRateLimited)
	}

	if err := s.killer.Kill(ctx, pid); err != nil {
		return s.fail(ctx, pid, callerID, err)
	}

	res := KillResult{PID: pid, Success: true, Message: fmt.Sprintf("Process %d killed successfully.", pid)}
	metrics.KillsTotal.WithLabelValues("success").Inc()
	s.logger.Info("process killed", logging.PID(int(pid)), logging.SubscriberID(callerID))
	if s.notifier != nil {
		s.notifier.Publish(ctx, broadcast.ProcessKilledEvent(pid, true, res.Message))
	}
	return res, nil
}

func (s *ProcessService) fail(ctx context.Context, pid int32, callerID string, cause error) (KillResult, error) {
	res := KillResult{PID: pid, Message: fmt.Sprintf("Failed to kill process %d: %v", pid, cause)}
	metrics.KillsTotal.WithLabelValues("failure").Inc()
	s.logger.Warn("process kill failed",
		logging.PID(int(pid)),
		logging.SubscriberID(callerID),
		logging.Error(cause),
	)

	if s.notifier != nil && callerID != "" {
		err := s.notifier.SendTo(ctx, callerID, broadcast.ProcessKilledEvent(pid, false, res.Message))
		if err != nil && !errors.Is(err, broadcast.ErrSubscriberNotFound) {
			s.logger.Warn("failed to notify caller", logging.SubscriberID(callerID), logging.Error(err))
		}
	}
	return res, fmt.Errorf("kill process %d: %w", pid, cause)
}
