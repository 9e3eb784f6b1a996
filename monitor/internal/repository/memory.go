package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

// MemoryRepository is an in-process Repository for running without
// PostgreSQL. Contents are lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []models.AnomalyEvent
	nextID int64
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1}
}

func (r *MemoryRepository) InsertBatch(_ context.Context, events []*models.AnomalyEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range events {
		e.ID = r.nextID
		r.nextID++
		r.events = append(r.events, *e)
	}
	return nil
}

func (r *MemoryRepository) ListRecent(_ context.Context, limit int) ([]*models.AnomalyEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	r.mu.RLock()
	sorted := make([]models.AnomalyEvent, len(r.events))
	copy(sorted, r.events)
	r.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ObservedAt.Equal(sorted[j].ObservedAt) {
			return sorted[i].ObservedAt.After(sorted[j].ObservedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*models.AnomalyEvent, len(sorted))
	for i := range sorted {
		e := sorted[i]
		out[i] = &e
	}
	return out, nil
}

// Len returns the number of stored events.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func (r *MemoryRepository) Close() error {
	return nil
}
