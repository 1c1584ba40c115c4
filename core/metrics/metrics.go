package metrics

import (
	"time"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// RunEvent summarises one scheduling run, successful or not.
type RunEvent struct {
	RunID    string
	Mode     model.Mode
	Start    time.Time
	Steps    int
	Cost     float64
	FinalSOC float64
	Success  bool
	// Reason classifies a failure: configuration, data, infeasible,
	// solver or sink.
	Reason   string
	Duration time.Duration
	Time     time.Time
}

// MetricsSink records run outcomes for observability purposes.
type MetricsSink interface {
	RecordRun(ev RunEvent) error
}

// SolveEvent captures one solver call.
type SolveEvent struct {
	RunID     string
	Stage     model.Stage
	Status    string
	Objective float64
	Nodes     int
	Duration  time.Duration
	Time      time.Time
}

// SolveRecorder records solver calls.
type SolveRecorder interface {
	RecordSolve(ev SolveEvent) error
}

// ScheduleRecorder records the planned trajectory of a finished run.
type ScheduleRecorder interface {
	RecordSchedule(res model.ScheduleResult) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error                 { return nil }
func (NopSink) RecordSolve(SolveEvent) error             { return nil }
func (NopSink) RecordSchedule(model.ScheduleResult) error { return nil }

// MultiSink fans events out to several sinks, returning the first error
// encountered.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolve forwards to sinks implementing SolveRecorder.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SolveRecorder); ok {
			if err := rec.RecordSolve(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSchedule forwards to sinks implementing ScheduleRecorder.
func (m *MultiSink) RecordSchedule(res model.ScheduleResult) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ScheduleRecorder); ok {
			if err := rec.RecordSchedule(res); err != nil {
				return err
			}
		}
	}
	return nil
}
