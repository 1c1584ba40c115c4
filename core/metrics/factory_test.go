package metrics_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bess-scheduler/core/factory"
	metrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
	_ "github.com/kilianp07/bess-scheduler/infra/metrics"
)

type countingSink struct {
	runs, solves, schedules int
	err                     error
}

func (c *countingSink) RecordRun(metrics.RunEvent) error { c.runs++; return c.err }
func (c *countingSink) RecordSolve(metrics.SolveEvent) error {
	c.solves++
	return c.err
}

type runOnlySink struct{ runs int }

func (r *runOnlySink) RecordRun(metrics.RunEvent) error { r.runs++; return nil }

func TestNewMetricsSink(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "expected MultiSink, got %T", s)
	assert.Len(t, m.Sinks, 2)

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.Error(t, err)
}

func TestMetricsConfigDecodeYAML(t *testing.T) {
	data := `prometheus_port: ":9100"
sinks:
  - type: nop
  - type: nop
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	assert.Len(t, cfg.Sinks, 2)
	s, err := metrics.NewMetricsSink(cfg.Sinks)
	require.NoError(t, err)
	assert.IsType(t, &metrics.MultiSink{}, s)
}

func TestMultiSinkForwarding(t *testing.T) {
	full := &countingSink{}
	basic := &runOnlySink{}
	m := metrics.NewMultiSink(full, basic)

	require.NoError(t, m.RecordRun(metrics.RunEvent{RunID: "r1", Success: true}))
	require.NoError(t, m.RecordSolve(metrics.SolveEvent{RunID: "r1", Stage: model.StageCost}))
	require.NoError(t, m.RecordSchedule(model.ScheduleResult{RunID: "r1"}))

	assert.Equal(t, 1, full.runs)
	assert.Equal(t, 1, full.solves)
	assert.Equal(t, 1, basic.runs)
}

func TestMultiSinkFirstError(t *testing.T) {
	boom := errors.New("boom")
	first := &countingSink{err: boom}
	second := &countingSink{}
	m := metrics.NewMultiSink(first, second)

	assert.ErrorIs(t, m.RecordRun(metrics.RunEvent{}), boom)
	assert.Equal(t, 0, second.runs)
}
