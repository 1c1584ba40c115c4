package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/bess-scheduler/core/logger"
	"github.com/kilianp07/bess-scheduler/core/metrics"
	"github.com/kilianp07/bess-scheduler/core/model"
)

// Request bundles the inputs of one optimisation.
type Request struct {
	RunID      string
	Battery    model.Battery
	Window     model.ForecastWindow
	InitialSOC float64
	Event      model.DispatchEvent
}

// Optimizer selects between a single cost solve and the two-stage dispatch
// procedure, and owns the fixing handoff between stages.
type Optimizer struct {
	Solver  Solver
	Options Options
	Log     logger.Logger
	Metrics metrics.MetricsSink
}

// New returns an Optimizer. Nil collaborators are replaced by the branch and
// bound solver and no-op logger and metrics.
func New(s Solver, opts Options, log logger.Logger, m metrics.MetricsSink) *Optimizer {
	if s == nil {
		s = NewBranchAndBound()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if m == nil {
		m = metrics.NopSink{}
	}
	return &Optimizer{Solver: s, Options: opts, Log: log, Metrics: m}
}

// Optimize computes the schedule for req. Invalid inputs are rejected before
// any solver call. With an active dispatch event, the dispatch stage runs
// first and the grid exchange of masked steps is pinned for the cost stage.
// Stage failures invalidate the whole run; there is no fallback to
// cost-only mode.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (model.ScheduleResult, error) {
	base, err := Build(req.Battery, req.Window, req.InitialSOC, req.Event, o.Options)
	if err != nil {
		return model.ScheduleResult{}, err
	}

	if !req.Event.Active() {
		sol, rep, err := o.solve(ctx, req.RunID, base, base.CostObjective(), model.StageCost)
		if err != nil {
			return model.ScheduleResult{}, stageError(model.StageCost, err, false)
		}
		res := assemble(base, sol.Values)
		res.Mode = model.ModeCostOnly
		res.Stages = []model.StageReport{rep}
		return o.finish(req, res), nil
	}

	sol1, rep1, err := o.solve(ctx, req.RunID, base, base.DispatchObjective(), model.StageDispatch)
	if err != nil {
		return model.ScheduleResult{}, stageError(model.StageDispatch, err, false)
	}
	fix := make(map[int]float64)
	for t := 0; t < base.Len(); t++ {
		if req.Event.Masked(t) {
			fix[t] = clean(base.Grid(sol1.Values, t))
		}
	}
	rep1.Fixed = fix
	o.log().Debugw("dispatch stage pinned grid exchange", map[string]any{
		"run_id": req.RunID,
		"steps":  len(fix),
	})

	fixed := base.WithFixings(fix)
	sol2, rep2, err := o.solve(ctx, req.RunID, fixed, fixed.CostObjective(), model.StageCost)
	if err != nil {
		return model.ScheduleResult{}, stageError(model.StageCost, err, true)
	}
	res := assemble(fixed, sol2.Values)
	res.Mode = model.ModeDispatch
	res.Stages = []model.StageReport{rep1, rep2}
	return o.finish(req, res), nil
}

func (o *Optimizer) log() logger.Logger {
	if o.Log == nil {
		return logger.NopLogger{}
	}
	return o.Log
}

func (o *Optimizer) solver() Solver {
	if o.Solver == nil {
		return NewBranchAndBound()
	}
	return o.Solver
}

func (o *Optimizer) finish(req Request, res model.ScheduleResult) model.ScheduleResult {
	res.RunID = req.RunID
	o.log().Infof("run %s solved in %s mode: %d steps, cost %.4f, final soc %.3f kWh",
		req.RunID, res.Mode, len(res.Entries), res.Cost, res.FinalSOC)
	return res
}

// solve issues one solver call unless ctx is already done. Once issued the
// call runs to completion.
func (o *Optimizer) solve(ctx context.Context, runID string, m *Model, obj Objective, stage model.Stage) (Solution, model.StageReport, error) {
	rep := model.StageReport{Stage: stage}
	if err := ctx.Err(); err != nil {
		return Solution{}, rep, fmt.Errorf("%s stage not started: %w", stage, err)
	}
	start := time.Now()
	sol, err := o.solver().Solve(ctx, m.problem, obj)
	rep.Duration = time.Since(start)
	rep.Nodes = sol.Nodes
	if err == nil && sol.Status != StatusOptimal {
		err = &SolveError{Status: sol.Status, Err: errors.New("solver returned no error for a non-optimal outcome")}
	}
	if err == nil && len(sol.Values) != m.problem.NumVars() {
		err = &SolveError{Status: StatusFailure, Err: fmt.Errorf("solver returned %d values for %d variables", len(sol.Values), m.problem.NumVars())}
	}
	if err == nil {
		rep.Objective = sol.Objective
	}

	status := sol.Status
	var se *SolveError
	if errors.As(err, &se) {
		status = se.Status
	}
	if rec, ok := o.Metrics.(metrics.SolveRecorder); ok {
		ev := metrics.SolveEvent{
			RunID:     runID,
			Stage:     stage,
			Status:    status.String(),
			Objective: rep.Objective,
			Nodes:     rep.Nodes,
			Duration:  rep.Duration,
			Time:      time.Now(),
		}
		if mErr := rec.RecordSolve(ev); mErr != nil {
			o.log().Warnf("record solve metric: %v", mErr)
		}
	}
	if err != nil {
		o.log().Warnf("run %s: %s stage finished with %s after %s: %v", runID, stage, status, rep.Duration, err)
		return sol, rep, err
	}
	o.log().Debugw("stage solved", map[string]any{
		"run_id":    runID,
		"stage":     string(stage),
		"objective": round6(rep.Objective),
		"nodes":     rep.Nodes,
		"duration":  rep.Duration.String(),
	})
	return sol, rep, nil
}

// stageError classifies a solver error. After a successful dispatch stage an
// infeasible cost stage is a solver failure.
func stageError(stage model.Stage, err error, afterDispatch bool) error {
	var se *SolveError
	if !errors.As(err, &se) {
		return err
	}
	if se.Status == StatusInfeasible && !afterDispatch {
		return &InfeasibleError{Stage: stage, Err: err}
	}
	return &SolverFailureError{Stage: stage, Status: se.Status, Err: err}
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
