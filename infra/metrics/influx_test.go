package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
)

type influxRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *influxRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, strings.TrimSpace(string(data)))
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfluxSinkRecordRun(t *testing.T) {
	rec := &influxRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket", Site: "depot"})
	defer sink.Close()

	now := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	ev := coremetrics.RunEvent{
		RunID:    "r1",
		Mode:     model.ModeCostOnly,
		Steps:    24,
		Cost:     3.14159,
		FinalSOC: 12,
		Success:  true,
		Duration: 1500 * time.Millisecond,
		Time:     now,
	}
	require.NoError(t, sink.RecordRun(ev))

	p := write.NewPointWithMeasurement("schedule_run").
		AddTag("component", "scheduler").
		AddTag("site", "depot").
		AddTag("run_id", "r1").
		AddTag("mode", "cost_only").
		AddTag("outcome", "success").
		AddField("steps", 24).
		AddField("cost", 3.142).
		AddField("final_soc", 12.0).
		AddField("duration_ms", 1500.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	require.Len(t, rec.bodies, 1)
	assert.Equal(t, expected, rec.bodies[0])
}

func TestInfluxSinkRecordSchedule(t *testing.T) {
	rec := &influxRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	res := model.ScheduleResult{RunID: "r2", Entries: []model.ScheduleEntry{
		{Timestamp: start, Charge: 2, SOC: 5, Grid: 3, SolarGen: 4, Price: 0.1},
		{Timestamp: start.Add(time.Hour), Discharge: 1.23456, SOC: 6.8, Grid: -1, Price: 0.3},
	}}
	require.NoError(t, sink.RecordSchedule(res))
	require.NoError(t, sink.RecordSchedule(model.ScheduleResult{}))

	require.Len(t, rec.bodies, 1)
	lines := strings.Split(rec.bodies[0], "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "schedule_step,component=scheduler,run_id=r2 "))
	assert.Contains(t, lines[1], "discharge_kw=1.235")
	assert.True(t, strings.HasSuffix(lines[1], " "+strconv.FormatInt(start.Add(time.Hour).UnixNano(), 10)))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	assert.IsType(t, coremetrics.NopSink{}, sink)
	assert.True(t, called)
}
