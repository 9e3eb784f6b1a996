package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "001_init.up.sql")
	assert.Contains(t, names, "001_init.down.sql")

	up, err := fs.ReadFile(FS, "001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS anomaly_logs")
}

func TestNew_InvalidConnString(t *testing.T) {
	_, err := New("not-a-database-url")
	assert.Error(t, err)
}
