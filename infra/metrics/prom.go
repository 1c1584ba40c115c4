package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
)

// PromSink exposes run and solver metrics to Prometheus.
type PromSink struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	solves      *prometheus.HistogramVec
	nodes       *prometheus.HistogramVec
	cost        prometheus.Gauge
	finalSOC    prometheus.Gauge
	planned     *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one. Registering twice reuses the
// existing collectors.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bess_runs_total",
		Help: "Scheduling runs by mode and outcome",
	}, []string{"mode", "outcome"})); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bess_run_duration_seconds",
		Help:    "Wall time of a scheduling run",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.solves, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bess_solve_duration_seconds",
		Help:    "Wall time of one solver call",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"stage", "status"})); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bess_solver_nodes",
		Help:    "Branch and bound nodes explored per solver call",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bess_schedule_cost",
		Help: "Energy cost of the latest schedule",
	})); err != nil {
		return nil, err
	}
	if s.finalSOC, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bess_schedule_final_soc_kwh",
		Help: "State of charge at the end of the latest schedule",
	})); err != nil {
		return nil, err
	}
	if s.planned, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bess_planned_power_kw",
		Help: "Planned power of the first step of the latest schedule",
	}, []string{"flow"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func outcome(ev coremetrics.RunEvent) string {
	if ev.Success {
		return "success"
	}
	if ev.Reason == "" {
		return "failure"
	}
	return ev.Reason
}

// RecordRun counts the run and observes its duration.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	o := outcome(ev)
	mode := string(ev.Mode)
	if mode == "" {
		mode = "unknown"
	}
	s.runs.WithLabelValues(mode, o).Inc()
	s.runDuration.WithLabelValues(o).Observe(ev.Duration.Seconds())
	if ev.Success {
		s.cost.Set(ev.Cost)
		s.finalSOC.Set(ev.FinalSOC)
	}
	return nil
}

// RecordSolve observes one solver call.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(string(ev.Stage), ev.Status).Observe(ev.Duration.Seconds())
	s.nodes.WithLabelValues(string(ev.Stage)).Observe(float64(ev.Nodes))
	return nil
}

// RecordSchedule publishes the first planned step.
func (s *PromSink) RecordSchedule(res model.ScheduleResult) error {
	if len(res.Entries) == 0 {
		return nil
	}
	e := res.Entries[0]
	s.planned.WithLabelValues("charge").Set(e.Charge)
	s.planned.WithLabelValues("discharge").Set(e.Discharge)
	s.planned.WithLabelValues("grid").Set(e.Grid)
	s.planned.WithLabelValues("solar_used").Set(e.SolarUsed)
	return nil
}
