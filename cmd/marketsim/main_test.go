package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridmarket/internal/config"
	"github.com/talgya/gridmarket/internal/engine"
	"github.com/talgya/gridmarket/internal/persistence"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "marketsim.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: error\n"), 0o644))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand_PrintsSummary(t *testing.T) {
	out, err := execute(t, "run", "--steps", "30", "--seed", "7")

	require.NoError(t, err)
	assert.Contains(t, out, "Market finished at step 30")
	assert.Contains(t, out, "(seed 7)")
	assert.Contains(t, out, "Conservation:      ok (100 units)")
	assert.NotContains(t, out, "Run ID")
}

func TestRunCommand_RejectsBadFlags(t *testing.T) {
	_, err := execute(t, "run", "--sellers", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flags")
}

func TestRunThenReport(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "runs.db")

	out, err := execute(t, "run", "--steps", "12", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run ID:")

	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Finished)
	assert.Equal(t, 12, runs[0].Steps)

	out, err = execute(t, "runs", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)

	out, err = execute(t, "report", "--db", dbPath, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "STEP")
	assert.Contains(t, out, "MEAN PRICE")
	assert.Contains(t, out, "(finished: true)")
}

func TestReport_UnknownRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	db, err := persistence.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = execute(t, "report", "--db", dbPath, "--run", "missing")

	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestReport_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "absent.db")

	_, err := execute(t, "runs", "--db", dbPath)

	require.Error(t, err)
	assert.NoFileExists(t, dbPath)
}

func TestPrintSummary_DetectsLostStock(t *testing.T) {
	sim, err := engine.NewSimulation(engine.DefaultParams())
	require.NoError(t, err)
	sim.Agents[0].Stall.Stock--

	var out bytes.Buffer
	err = printSummary(&out, sim, "")

	require.Error(t, err)
	assert.Contains(t, out.String(), "VIOLATED (99 of 100)")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "step", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.EqualValues(t, 3, line["step"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
