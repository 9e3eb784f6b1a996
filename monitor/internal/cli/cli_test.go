package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cybermonitor/monitor-stack/common/config"
	"github.com/cybermonitor/monitor-stack/monitor/internal/models"
)

func sampleEvents() []*models.AnomalyEvent {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return []*models.AnomalyEvent{
		{ID: 2, Category: "CPU", Severity: "CRITICAL", Message: "CPU at 95%", ObservedAt: at},
		{ID: 1, Category: "DISK", Severity: "WARNING", Message: "disk /var 91% full", ObservedAt: at.Add(-time.Minute)},
	}
}

func TestWriteAnomalies_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnomalies(&buf, FormatTable, sampleEvents()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[0], "SEVERITY")
	assert.True(t, strings.HasPrefix(lines[1], "--"))
	assert.Contains(t, lines[2], "CPU at 95%")
	assert.Contains(t, lines[3], "disk /var 91% full")
}

func TestWriteAnomalies_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnomalies(&buf, FormatJSON, sampleEvents()))

	var got []models.AnomalyEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "CPU", got[0].Category)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestWriteAnomalies_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnomalies(&buf, FormatYAML, sampleEvents()))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "CRITICAL", got[0]["severity"])
	assert.Equal(t, "disk /var 91% full", got[1]["message"])
}

func TestWriteAnomalies_UnknownFormat(t *testing.T) {
	err := writeAnomalies(&bytes.Buffer{}, "xml", nil)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestLaunchConfig(t *testing.T) {
	dir := t.TempDir()
	lc, err := launchConfig(config.ProducerConfig{
		ExecutablePath:   "python3",
		ScriptPath:       "stats_collector.py",
		WorkingDirectory: dir,
		Args:             []string{"-u"},
		StopTimeout:      3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "python3", lc.ExecutablePath)
	assert.Equal(t, "stats_collector.py", lc.ScriptPath)
	assert.Equal(t, dir, lc.WorkingDirectory)
	assert.Equal(t, []string{"-u"}, lc.Args)
	assert.Equal(t, 3*time.Second, lc.StopTimeout)
}

func TestStoreURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Type: "postgres",
		Postgres: config.PostgresConfig{
			Host: "db", Port: 5432, Database: "monitor", User: "monitor", Password: "secret",
		},
	}}
	url, err := storeURL(cfg)
	require.NoError(t, err)
	assert.Equal(t, "postgres://monitor:secret@db:5432/monitor?sslmode=disable", url)

	cfg.Database.Type = "memory"
	_, err = storeURL(cfg)
	assert.ErrorContains(t, err, "needs postgres")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "history", "inspect"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommand_MissingConfig(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "history"})

	err := root.Execute()
	assert.ErrorContains(t, err, "failed to load config")
}

func TestHistoryCommand_RequiresPostgres(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database:\n  type: memory\n"), 0o600))

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "history", "--output", "json"})

	err := root.Execute()
	assert.ErrorContains(t, err, "needs postgres")
}

func TestMigrateDown_InvalidSteps(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "down", "zero"})

	err := root.Execute()
	assert.ErrorContains(t, err, "steps must be a positive integer")
}

const capturedOutput = `Collector starting...
STATS:{"cpu":91.5,"memory":40.0,"network_in":1.5,"network_out":0.5,"anomalies":[{"type":"CPU","severity":"CRITICAL","message":"CPU at 91.5%"},{}]}
PROCS:[{"pid":10,"name":"idle","cpu_percent":0.5},{"pid":42,"name":"python","cpu_percent":35.0}]
DISK:[{"device":"/dev/sda1","mountpoint":"/","total":100,"free":60,"percent":40.0},{"device":"/dev/sdb1","mountpoint":"/var","total":100,"free":5,"percent":95.0}]
STATS:{"cpu":
PROCS:[]
`

func TestInspectLines(t *testing.T) {
	records, err := inspectLines(strings.NewReader(capturedOutput))
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, inspectRecord{
		Line:      2,
		Kind:      "stats",
		Summary:   "cpu 91.5%, memory 40.0%, net in 1.5, net out 0.5",
		Anomalies: 2,
	}, records[0])
	assert.Equal(t, "processes", records[1].Kind)
	assert.Equal(t, "2 processes, busiest python (pid 42) at 35.0% cpu", records[1].Summary)
	assert.Equal(t, "2 disks, fullest /var at 95.0%", records[2].Summary)

	assert.Equal(t, 5, records[3].Line)
	assert.NotEmpty(t, records[3].Error)
	assert.Equal(t, "0 processes", records[4].Summary)
}

func TestInspectCommand_JSONFromStdin(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetIn(strings.NewReader(capturedOutput))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"inspect", "-o", "json"})

	require.NoError(t, root.Execute())

	var records []inspectRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 5)
	assert.Equal(t, 2, records[0].Anomalies)
}

func TestInspectCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	require.NoError(t, os.WriteFile(path, []byte(capturedOutput), 0o600))

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"inspect", path})

	require.NoError(t, root.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "LINE"))
	assert.Contains(t, lines[5], "error: ")
}

func TestInspectCommand_MissingFile(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"inspect", filepath.Join(t.TempDir(), "nope.log")})

	assert.Error(t, root.Execute())
}
