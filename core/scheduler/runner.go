package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/bess-scheduler/core/logger"
	"github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/monitoring"
	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/internal/eventbus"
)

// RunNotification is published on the bus after every run.
type RunNotification struct {
	RunID  string
	Result model.ScheduleResult
	Err    error
	Time   time.Time
}

// Comparison holds the schedules computed with and without a dispatch event
// over the same forecast and starting state.
type Comparison struct {
	Dispatch model.ScheduleResult `json:"dispatch"`
	Baseline model.ScheduleResult `json:"baseline"`
	// CostDelta is the dispatch cost minus the baseline cost.
	CostDelta     float64 `json:"cost_delta"`
	DispatchSteps int     `json:"dispatch_steps"`
}

// Runner wires the optimizer to its collaborators. SOC, Sink, Publishers,
// Metrics, Log and Bus are optional.
type Runner struct {
	Battery    model.Battery
	Config     Config
	Forecast   ForecastSource
	SOC        SOCSource
	Sink       ResultSink
	Publishers []Publisher
	Optimizer  Optimizer
	Metrics    metrics.MetricsSink
	Log        logger.Logger
	Bus        *eventbus.TypedBus[RunNotification]

	now   func() time.Time
	newID func() string
}

// NewRunner returns a Runner with no-op logging and metrics.
func NewRunner(b model.Battery, cfg Config, fs ForecastSource, opt Optimizer) *Runner {
	cfg.SetDefaults()
	return &Runner{
		Battery:   b,
		Config:    cfg,
		Forecast:  fs,
		Optimizer: opt,
		Metrics:   metrics.NopSink{},
		Log:       logger.NopLogger{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *Runner) id() string {
	if r.newID == nil {
		return uuid.NewString()
	}
	return r.newID()
}

func (r *Runner) log() logger.Logger {
	if r.Log == nil {
		return logger.NopLogger{}
	}
	return r.Log
}

// Run computes and persists the schedule starting at start. windows become
// the dispatch event of the run; without any the run minimises cost only.
// When persistence fails the assembled result is returned with the error.
func (r *Runner) Run(ctx context.Context, start time.Time, windows []model.DispatchWindow) (model.ScheduleResult, error) {
	runID := r.id()
	began := r.clock()
	w, err := r.forecast(ctx, start)
	if err != nil {
		return model.ScheduleResult{}, r.fail(runID, start, began, err)
	}
	soc, err := r.initialSOC(ctx, w.Start())
	if err != nil {
		return model.ScheduleResult{}, r.fail(runID, start, began, err)
	}
	return r.execute(ctx, runID, began, w, soc, windows)
}

// RunSequence executes n runs back to back. Run i+1 starts where run i's
// window ends and uses run i's final state of charge. It stops at the first
// failure and returns the results computed so far.
func (r *Runner) RunSequence(ctx context.Context, start time.Time, n int, windows []model.DispatchWindow) ([]model.ScheduleResult, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]model.ScheduleResult, 0, n)
	first, err := r.Run(ctx, start, windows)
	if err != nil {
		return out, err
	}
	out = append(out, first)
	prev := first
	for i := 1; i < n; i++ {
		runID := r.id()
		began := r.clock()
		w, err := r.forecast(ctx, prev.End)
		if err != nil {
			return out, r.fail(runID, prev.End, began, err)
		}
		res, err := r.execute(ctx, runID, began, w, prev.FinalSOC, windows)
		if err != nil {
			return out, err
		}
		out = append(out, res)
		prev = res
	}
	return out, nil
}

// Compare solves the same horizon with and without the dispatch windows.
// Nothing is persisted or published.
func (r *Runner) Compare(ctx context.Context, start time.Time, windows []model.DispatchWindow) (Comparison, error) {
	w, err := r.forecast(ctx, start)
	if err != nil {
		return Comparison{}, err
	}
	soc, err := r.initialSOC(ctx, w.Start())
	if err != nil {
		return Comparison{}, err
	}
	ev := model.EventFromWindows(w, windows)
	base, err := r.Optimizer.Optimize(ctx, optimize.Request{RunID: r.id(), Battery: r.Battery, Window: w, InitialSOC: soc})
	if err != nil {
		return Comparison{}, fmt.Errorf("baseline: %w", err)
	}
	disp, err := r.Optimizer.Optimize(ctx, optimize.Request{RunID: r.id(), Battery: r.Battery, Window: w, InitialSOC: soc, Event: ev})
	if err != nil {
		return Comparison{}, fmt.Errorf("dispatch: %w", err)
	}
	steps := 0
	for t := 0; t < w.Len(); t++ {
		if ev.Masked(t) {
			steps++
		}
	}
	return Comparison{Dispatch: disp, Baseline: base, CostDelta: disp.Cost - base.Cost, DispatchSteps: steps}, nil
}

func (r *Runner) forecast(ctx context.Context, start time.Time) (model.ForecastWindow, error) {
	if err := ctx.Err(); err != nil {
		return model.ForecastWindow{}, err
	}
	w, err := r.Forecast.GetForecast(ctx, start, r.Config.HorizonHours)
	if err != nil {
		var de *model.DataError
		if errors.As(err, &de) {
			return model.ForecastWindow{}, err
		}
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "query failed", Err: err}
	}
	if w.Len() == 0 {
		return model.ForecastWindow{}, &model.DataError{Source: "forecast", Reason: "no rows"}
	}
	return w, nil
}

func (r *Runner) initialSOC(ctx context.Context, ts time.Time) (float64, error) {
	if r.SOC == nil {
		return r.Config.DefaultInitialSOC, nil
	}
	soc, ok, err := r.SOC.GetInitialSoc(ctx, ts)
	if err != nil {
		return 0, &model.DataError{Source: "soc", Reason: "lookup failed", Err: err}
	}
	if !ok {
		r.log().Infof("no previous state of charge at %s, using default %.2f kWh", ts.Format(time.RFC3339), r.Config.DefaultInitialSOC)
		return r.Config.DefaultInitialSOC, nil
	}
	return soc, nil
}

func (r *Runner) execute(ctx context.Context, runID string, began time.Time, w model.ForecastWindow, soc float64, windows []model.DispatchWindow) (model.ScheduleResult, error) {
	ev := model.EventFromWindows(w, windows)
	res, err := r.Optimizer.Optimize(ctx, optimize.Request{
		RunID:      runID,
		Battery:    r.Battery,
		Window:     w,
		InitialSOC: soc,
		Event:      ev,
	})
	if err != nil {
		return model.ScheduleResult{}, r.fail(runID, w.Start(), began, err)
	}
	res.RunID = runID
	res.CreatedAt = r.clock()

	if r.Sink != nil {
		if err := r.Sink.UpsertResults(ctx, res); err != nil {
			return res, r.fail(runID, w.Start(), began, fmt.Errorf("%w: %w", ErrSink, err))
		}
	}
	for _, p := range r.Publishers {
		if err := p.PublishSchedule(ctx, res); err != nil {
			logger.With(r.log(), "run_id", runID).Warnf("publish: %v", err)
		}
	}

	r.record(metrics.RunEvent{
		RunID:    runID,
		Mode:     res.Mode,
		Start:    w.Start(),
		Steps:    len(res.Entries),
		Cost:     res.Cost,
		FinalSOC: res.FinalSOC,
		Success:  true,
		Duration: r.clock().Sub(began),
		Time:     r.clock(),
	})
	if rec, ok := r.Metrics.(metrics.ScheduleRecorder); ok {
		if err := rec.RecordSchedule(res); err != nil {
			r.log().Warnf("record schedule metric: %v", err)
		}
	}
	r.notify(RunNotification{RunID: runID, Result: res, Time: r.clock()})
	return res, nil
}

func (r *Runner) fail(runID string, start, began time.Time, err error) error {
	reason := FailureReason(err)
	logger.With(r.log(), "run_id", runID).Errorf("run failed (%s): %v", reason, err)
	r.record(metrics.RunEvent{
		RunID:    runID,
		Start:    start,
		Reason:   reason,
		Duration: r.clock().Sub(began),
		Time:     r.clock(),
	})
	tags := map[string]string{"run_id": runID, "reason": reason}
	if st := failedStage(err); st != "" {
		tags["stage"] = string(st)
	}
	if reason != "cancelled" {
		monitoring.CaptureException(err, tags)
	}
	r.notify(RunNotification{RunID: runID, Err: err, Time: r.clock()})
	return err
}

func (r *Runner) record(ev metrics.RunEvent) {
	if r.Metrics == nil {
		return
	}
	if err := r.Metrics.RecordRun(ev); err != nil {
		r.log().Warnf("record run metric: %v", err)
	}
}

func (r *Runner) notify(n RunNotification) {
	if r.Bus != nil {
		r.Bus.Publish(n)
	}
}

// FailureReason classifies a run error for metrics and monitoring.
func FailureReason(err error) string {
	var (
		ce *model.ConfigurationError
		de *model.DataError
		ie *optimize.InfeasibleError
		sf *optimize.SolverFailureError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &de):
		return "data"
	case errors.As(err, &ie):
		return "infeasible"
	case errors.As(err, &sf):
		return "solver"
	case errors.Is(err, ErrSink):
		return "sink"
	default:
		return "unknown"
	}
}

func failedStage(err error) model.Stage {
	var ie *optimize.InfeasibleError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	var sf *optimize.SolverFailureError
	if errors.As(err, &sf) {
		return sf.Stage
	}
	return ""
}
