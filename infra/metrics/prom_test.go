package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(coremetrics.RunEvent{Mode: model.ModeDispatch, Success: true, Cost: 1.25, FinalSOC: 7, Duration: time.Second}))
	require.NoError(t, s.RecordRun(coremetrics.RunEvent{Reason: "infeasible"}))
	require.NoError(t, s.RecordSolve(coremetrics.SolveEvent{Stage: model.StageCost, Status: "OPTIMAL", Nodes: 3, Duration: 20 * time.Millisecond}))
	require.NoError(t, s.RecordSchedule(model.ScheduleResult{Entries: []model.ScheduleEntry{{Charge: 4, Grid: 6}}}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.runs.WithLabelValues("dispatch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runs.WithLabelValues("unknown", "infeasible")))
	assert.Equal(t, 1.25, testutil.ToFloat64(s.cost))
	assert.Equal(t, 7.0, testutil.ToFloat64(s.finalSOC))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.planned.WithLabelValues("charge")))
	assert.Equal(t, 6.0, testutil.ToFloat64(s.planned.WithLabelValues("grid")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.solves))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, a.RecordRun(coremetrics.RunEvent{Mode: model.ModeCostOnly, Success: true}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.runs.WithLabelValues("cost_only", "success")))
}

func TestPromHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(coremetrics.RunEvent{Mode: model.ModeCostOnly, Success: true, Cost: 2}))

	rec := httptest.NewRecorder()
	PromHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "bess_runs_total"), body)
	assert.True(t, strings.Contains(body, "bess_schedule_cost"), body)
}
