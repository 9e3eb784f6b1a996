package repository

import (
	"context"
	"errors"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

var (
	ErrEmptyBatch   = errors.New("empty anomaly batch")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Repository is the anomaly store. It only appends and reads back.
type Repository interface {
	// InsertBatch stores all events in one atomic unit and assigns each
	// event's ID. On error no event of the batch is stored and IDs are
	// left untouched.
	InsertBatch(ctx context.Context, events []*models.AnomalyEvent) error

	// ListRecent returns at most limit events, newest observation first.
	ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error)

	// Utility
	Close() error
}
