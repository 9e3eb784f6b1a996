package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryContext(t *testing.T) {
	ctx, cancel := QueryContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultQueryTimeout), deadline, time.Second)
}

func TestWriteContext(t *testing.T) {
	ctx, cancel := WriteContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultWriteTimeout), deadline, time.Second)
}

func TestWriteContext_InheritsCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, done := WriteContext(parent)
	defer done()

	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPostgresURL(t *testing.T) {
	assert.Equal(t,
		"postgres://monitor:secret@db:5432/monitor?sslmode=require",
		PostgresURL("monitor", "secret", "db", 5432, "monitor", "require"))
	assert.Equal(t,
		"postgres://u:p@localhost:5433/x?sslmode=disable",
		PostgresURL("u", "p", "localhost", 5433, "x", ""))
}
