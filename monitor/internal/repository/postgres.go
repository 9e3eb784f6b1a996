package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cybermonitor/monitor-stack/common/database"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

// serializationFailure is the SQLSTATE for a serializable transaction
// that lost a conflict and may be retried.
const serializationFailure = "40001"

const maxTxAttempts = 3

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// The bridge writes from a single goroutine; readers are HTTP handlers.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// InsertBatch inserts events in one serializable transaction. A
// serialization conflict is retried a bounded number of times.
func (r *PostgresRepository) InsertBatch(ctx context.Context, events []*models.AnomalyEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	var (
		ids []int64
		err error
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		ids, err = r.insertTx(ctx, events)
		if err == nil || !isSerializationFailure(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert anomaly batch: %w", err)
	}

	for i, e := range events {
		e.ID = ids[i]
	}
	return nil
}

func (r *PostgresRepository) insertTx(ctx context.Context, events []*models.AnomalyEvent) ([]int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO anomaly_logs (category, severity, message, observed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.Category, e.Severity, e.Message, e.ObservedAt)
	}

	results := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(events))
	for i := range events {
		if err := results.QueryRow().Scan(&ids[i]); err != nil {
			results.Close()
			return nil, fmt.Errorf("insert anomaly %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// ListRecent returns the newest anomalies by observation time.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*models.AnomalyEvent, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, category, severity, message, observed_at
		FROM anomaly_logs
		ORDER BY observed_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AnomalyEvent, 0, limit)
	for rows.Next() {
		e := &models.AnomalyEvent{}
		if err := rows.Scan(&e.ID, &e.Category, &e.Severity, &e.Message, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate anomalies: %w", err)
	}

	return events, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
