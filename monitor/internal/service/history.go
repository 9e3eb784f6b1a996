package service

import (
	"context"
	"fmt"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

// HistoryReader is the read side of the anomaly store.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error)
}

// HistoryService serves bounded listings of stored anomalies, newest first.
type HistoryService struct {
	repo         HistoryReader
	defaultLimit int
	maxLimit     int
}

// NewHistoryService creates a HistoryService. Non-positive limits fall
// back to DefaultHistoryLimit and MaxHistoryLimit.
func NewHistoryService(repo HistoryReader, defaultLimit, maxLimit int) *HistoryService {
	if maxLimit <= 0 {
		maxLimit = MaxHistoryLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultHistoryLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &HistoryService{repo: repo, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// ClampLimit maps a requested page size onto [1, maxLimit]. Zero or a
// negative value selects the default.
func (s *HistoryService) ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.defaultLimit
	case limit > s.maxLimit:
		return s.maxLimit
	default:
		return limit
	}
}

// ListRecent returns up to limit anomalies ordered by observation time
// descending.
func (s *HistoryService) ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error) {
	events, err := s.repo.ListRecent(ctx, s.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	if events == nil {
		events = []*models.AnomalyEvent{}
	}
	return events, nil
}
