package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bess-scheduler/core/model"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		outPath, maxNodes, runFormat, runStart, runCount = "", 0, "", "", 1
		cfgPath = "config.yaml"
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestOptimizeScenarioJSON(t *testing.T) {
	out, stderr, err := execute(t, "optimize", "--scenario", "../scenarios/example.yaml", "--format", "json")
	require.NoError(t, err)

	var res model.ScheduleResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.ModeDispatch, res.Mode)
	assert.Len(t, res.Entries, 24)
	assert.Contains(t, stderr, "residential-day")
}

func TestOptimizeScenarioCSVToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	_, _, err := execute(t, "optimize", "-s", "../scenarios/example.yaml", "-f", "csv", "-o", path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 25)
	assert.Equal(t, "timestamp", rows[0][0])
}

func TestOptimizeUnknownFormat(t *testing.T) {
	_, _, err := execute(t, "optimize", "-s", "../scenarios/example.yaml", "-f", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestOptimizeMissingScenario(t *testing.T) {
	_, _, err := execute(t, "optimize", "-s", filepath.Join(t.TempDir(), "absent.yaml"), "-f", "csv")
	assert.Error(t, err)
}

func TestRunChainsHorizons(t *testing.T) {
	dir := t.TempDir()
	forecast, err := filepath.Abs("../scenarios/forecast.csv")
	require.NoError(t, err)
	cfg := `battery:
  capacity_kwh: 20
  max_charge_kw: 5
  max_discharge_kw: 5
scheduler:
  horizon_hours: 3
  default_initial_soc: 5
forecast:
  type: csv
  conf:
    path: ` + forecast + `
store:
  dsn: ` + filepath.Join(dir, "bess.db") + `
`
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))

	out, stderr, err := execute(t, "run", "-c", cfgFile, "--start", "2024-06-01T00:00:00Z", "--runs", "2", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(stderr, "run "))
	assert.Equal(t, 2, strings.Count(out, "timestamp,charge"))
}

func TestRunRejectsBadStart(t *testing.T) {
	_, _, err := execute(t, "run", "--start", "yesterday", "--runs", "1")
	assert.ErrorContains(t, err, "--start")
}
