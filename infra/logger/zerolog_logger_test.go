package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelogger "github.com/kilianp07/bess-scheduler/core/logger"
)

func reset() {
	SetOutput(os.Stdout)
	_ = Configure(Config{})
}

func TestZerologLoggerWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(reset)
	require.NoError(t, Configure(Config{Level: "debug", Format: "json"}))

	l := New("optimizer")
	l.Debugw("stage solved", map[string]any{"stage": "cost", "nodes": 3})
	l.Infof("run %s done", "r1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "optimizer", first["component"])
	assert.Equal(t, "cost", first["stage"])
	assert.Equal(t, "debug", first["level"])
	assert.Contains(t, lines[1], "run r1 done")
}

func TestConfigureLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(reset)
	require.NoError(t, Configure(Config{Level: "warn", Format: "json"}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	l := New("test")
	l.Infof("hidden")
	l.Warnf("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, Configure(Config{Level: "loud"}))
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(reset)
	require.NoError(t, Configure(Config{Format: "json"}))
	l := NewZerologLogger("runner").(*ZerologLogger).With("run_id", "abc")
	l.Errorf("failed")
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
}

func TestErrorArgumentBecomesField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(reset)
	require.NoError(t, Configure(Config{Format: "json"}))

	l := corelogger.With(New("scheduler"), "run_id", "r7")
	l.Errorf("run failed (%s): %v", "data", errors.New("no rows"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "r7", entry["run_id"])
	assert.Equal(t, "no rows", entry["error"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "run failed (data): no rows", entry["message"])
}

func TestWithIgnoresPlainLoggers(t *testing.T) {
	l := corelogger.With(corelogger.NopLogger{}, "run_id", "r1")
	assert.Equal(t, corelogger.NopLogger{}, l)
}
