package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	corelogger "github.com/kilianp07/bess-scheduler/core/logger"
	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Site tags every point, for installations sharing a bucket.
	Site string `json:"site"`
}

// InfluxSink writes run outcomes, solver calls and planned trajectories to
// InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	site     string
	log      corelogger.Logger
}

// NewInfluxSink creates a sink for the given endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		site:     cfg.Site,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the instance and returns a NopSink when the
// health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) point(measurement string) *write.Point {
	p := write.NewPointWithMeasurement(measurement).AddTag("component", "scheduler")
	if s.site != "" {
		p = p.AddTag("site", s.site)
	}
	return p
}

// RecordRun writes one schedule_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("schedule_run").
		AddTag("run_id", ev.RunID).
		AddTag("mode", string(ev.Mode)).
		AddTag("outcome", outcome(ev)).
		AddField("steps", ev.Steps).
		AddField("cost", round3(ev.Cost)).
		AddField("final_soc", round3(ev.FinalSOC)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSolve writes one solver_stage point.
func (s *InfluxSink) RecordSolve(ev coremetrics.SolveEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("solver_stage").
		AddTag("run_id", ev.RunID).
		AddTag("stage", string(ev.Stage)).
		AddTag("status", ev.Status).
		AddField("objective", round3(ev.Objective)).
		AddField("nodes", ev.Nodes).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSchedule writes one schedule_step point per entry, stamped with the
// step timestamp.
func (s *InfluxSink) RecordSchedule(res model.ScheduleResult) error {
	if len(res.Entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(res.Entries))
	for _, e := range res.Entries {
		points = append(points, s.point("schedule_step").
			AddTag("run_id", res.RunID).
			AddField("charge_kw", round3(e.Charge)).
			AddField("discharge_kw", round3(e.Discharge)).
			AddField("soc_kwh", round3(e.SOC)).
			AddField("grid_kw", round3(e.Grid)).
			AddField("solar_kw", round3(e.SolarGen)).
			AddField("price", e.Price).
			SetTime(e.Timestamp))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
