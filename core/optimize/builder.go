package optimize

import (
	"fmt"
	"math"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// CostBasis selects which part of the grid exchange is priced.
type CostBasis string

const (
	// CostNet prices the signed grid exchange, so exports earn the price.
	CostNet CostBasis = "net"
	// CostImportOnly prices imports and ignores exports.
	CostImportOnly CostBasis = "import_only"
)

// Options tune the model shared by every stage of a run.
type Options struct {
	// AllowExport creates an export variable per step; without it the grid
	// exchange is import-only.
	AllowExport bool `json:"allow_export" yaml:"allow_export"`
	// ExportLimitKW bounds exports when positive.
	ExportLimitKW float64 `json:"export_limit_kw" yaml:"export_limit_kw"`
	// GridCharging lets the battery charge from the grid. By default
	// charging is limited by the solar forecast left after direct use.
	GridCharging bool      `json:"grid_charging" yaml:"grid_charging"`
	CostBasis    CostBasis `json:"cost_basis" yaml:"cost_basis"`
}

// DefaultOptions returns net pricing with unlimited export and solar-only
// charging.
func DefaultOptions() Options {
	return Options{AllowExport: true, CostBasis: CostNet}
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.ExportLimitKW < 0 || math.IsNaN(o.ExportLimitKW) {
		return &model.ConfigurationError{Field: "optimizer.export_limit_kw", Reason: "must not be negative"}
	}
	switch o.CostBasis {
	case "", CostNet, CostImportOnly:
	default:
		return &model.ConfigurationError{Field: "optimizer.cost_basis", Reason: fmt.Sprintf("unknown basis %q", o.CostBasis)}
	}
	return nil
}

// Variables indexes the decision variables of a model. GridExport is nil when
// exports are disabled. SOC has one more entry than the window.
type Variables struct {
	Charge     []Var
	Discharge  []Var
	SolarUsed  []Var
	GridImport []Var
	GridExport []Var
	ChargeOn   []Var
	// ExportOn is set only for import-only pricing with exports enabled,
	// where simultaneous import and export is not cost neutral.
	ExportOn []Var
	SOC      []Var
}

// Model is the variable and constraint set for one run. It is never modified
// after Build; WithFixings derives a new model.
type Model struct {
	problem    *Problem
	vars       Variables
	battery    model.Battery
	window     model.ForecastWindow
	event      model.DispatchEvent
	initialSOC float64
	opts       Options
}

// Build translates the battery, forecast and initial state of charge into a
// fresh model. It performs no solving. Contradictions visible without a
// solve are returned as a ConfigurationError wrapping
// model.ErrInfeasibleConfiguration.
func Build(b model.Battery, w model.ForecastWindow, initialSOC float64, ev model.DispatchEvent, opts Options) (*Model, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	T := w.Len()
	if T == 0 {
		return nil, &model.DataError{Source: "forecast", Reason: "window is empty"}
	}
	if err := b.CheckSOC(initialSOC); err != nil {
		return nil, err
	}
	if err := ev.Validate(T); err != nil {
		return nil, err
	}
	for t := 0; t < T; t++ {
		if target := ev.Target(t); target > b.MaxDischargeKW {
			return nil, &model.ConfigurationError{
				Field:  "dispatch.target_kw",
				Reason: fmt.Sprintf("target %v kW at step %d exceeds max discharge %v kW", target, t, b.MaxDischargeKW),
				Err:    model.ErrInfeasibleConfiguration,
			}
		}
	}
	if opts.CostBasis == "" {
		opts.CostBasis = CostNet
	}

	p := NewProblem()
	inf := math.Inf(1)
	vs := Variables{
		Charge:     make([]Var, T),
		Discharge:  make([]Var, T),
		SolarUsed:  make([]Var, T),
		GridImport: make([]Var, T),
		ChargeOn:   make([]Var, T),
		SOC:        make([]Var, T+1),
	}
	exclusiveGrid := opts.AllowExport && opts.CostBasis == CostImportOnly
	if opts.AllowExport {
		vs.GridExport = make([]Var, T)
	}
	if exclusiveGrid {
		vs.ExportOn = make([]Var, T)
	}
	for t := 0; t < T; t++ {
		vs.Charge[t] = p.AddVar(fmt.Sprintf("charge[%d]", t), inf)
		vs.Discharge[t] = p.AddVar(fmt.Sprintf("discharge[%d]", t), inf)
		vs.SolarUsed[t] = p.AddVar(fmt.Sprintf("solar_used[%d]", t), inf)
		vs.GridImport[t] = p.AddVar(fmt.Sprintf("grid_import[%d]", t), inf)
		if opts.AllowExport {
			limit := inf
			if opts.ExportLimitKW > 0 {
				limit = opts.ExportLimitKW
			}
			vs.GridExport[t] = p.AddVar(fmt.Sprintf("grid_export[%d]", t), limit)
		}
		vs.ChargeOn[t] = p.AddBinary(fmt.Sprintf("charge_on[%d]", t))
		if exclusiveGrid {
			vs.ExportOn[t] = p.AddBinary(fmt.Sprintf("export_on[%d]", t))
		}
	}
	for t := 0; t <= T; t++ {
		vs.SOC[t] = p.AddVar(fmt.Sprintf("soc[%d]", t), b.CapacityKWh)
	}

	p.Add(Eq("soc_initial", Expr{{vs.SOC[0], 1}}, initialSOC))
	for t := 0; t < T; t++ {
		dt := w.StepHours(t)
		// Losses on both legs: efficiency multiplies energy going in and
		// divides energy coming out.
		p.Add(Eq(fmt.Sprintf("soc_dynamics[%d]", t), Expr{
			{vs.SOC[t+1], 1},
			{vs.SOC[t], -1},
			{vs.Charge[t], -dt * b.ChargeEfficiency},
			{vs.Discharge[t], dt / b.DischargeEfficiency},
		}, 0))

		p.Add(
			Le(fmt.Sprintf("charge_exclusive[%d]", t), Expr{{vs.Charge[t], 1}, {vs.ChargeOn[t], -b.MaxChargeKW}}, 0),
			Le(fmt.Sprintf("discharge_exclusive[%d]", t), Expr{{vs.Discharge[t], 1}, {vs.ChargeOn[t], b.MaxDischargeKW}}, b.MaxDischargeKW),
		)

		if opts.GridCharging {
			p.Add(Le(fmt.Sprintf("solar_available[%d]", t), Expr{{vs.SolarUsed[t], 1}}, w.Solar(t)))
		} else {
			p.Add(Le(fmt.Sprintf("solar_available[%d]", t), Expr{{vs.Charge[t], 1}, {vs.SolarUsed[t], 1}}, w.Solar(t)))
		}

		// grid + solar_used + discharge = load + charge
		balance := Expr{{vs.GridImport[t], 1}, {vs.SolarUsed[t], 1}, {vs.Discharge[t], 1}, {vs.Charge[t], -1}}
		if opts.AllowExport {
			balance = append(balance, Term{vs.GridExport[t], -1})
		}
		p.Add(Eq(fmt.Sprintf("power_balance[%d]", t), balance, w.Load(t)))

		if exclusiveGrid {
			impMax, expMax := gridBounds(b, w, t, opts)
			p.Add(
				Le(fmt.Sprintf("import_exclusive[%d]", t), Expr{{vs.GridImport[t], 1}, {vs.ExportOn[t], impMax}}, impMax),
				Le(fmt.Sprintf("export_exclusive[%d]", t), Expr{{vs.GridExport[t], 1}, {vs.ExportOn[t], -expMax}}, 0),
			)
		}

		if target := ev.Target(t); target > 0 {
			p.Add(Ge(fmt.Sprintf("dispatch_target[%d]", t), Expr{{vs.Discharge[t], 1}}, target))
		}
	}

	return &Model{
		problem:    p,
		vars:       vs,
		battery:    b,
		window:     w,
		event:      ev,
		initialSOC: initialSOC,
		opts:       opts,
	}, nil
}

// gridBounds returns the largest import and export step t can need when the
// other direction is idle.
func gridBounds(b model.Battery, w model.ForecastWindow, t int, opts Options) (float64, float64) {
	charge := b.MaxChargeKW
	if !opts.GridCharging {
		charge = math.Min(charge, w.Solar(t))
	}
	imp := math.Max(0, w.Load(t)+charge)
	exp := math.Max(0, w.Solar(t)+b.MaxDischargeKW)
	if opts.ExportLimitKW > 0 {
		exp = math.Min(exp, opts.ExportLimitKW)
	}
	return imp, exp
}

// Problem returns a copy of the underlying problem.
func (m *Model) Problem() *Problem { return m.problem.Clone() }

// Vars returns the variable index.
func (m *Model) Vars() Variables { return m.vars }

// Len returns the number of timesteps.
func (m *Model) Len() int { return m.window.Len() }

// GridExpr returns the signed grid exchange of step t.
func (m *Model) GridExpr(t int) Expr {
	e := Expr{{m.vars.GridImport[t], 1}}
	if m.vars.GridExport != nil {
		e = append(e, Term{m.vars.GridExport[t], -1})
	}
	return e
}

// Grid evaluates the signed grid exchange of step t at x.
func (m *Model) Grid(x []float64, t int) float64 { return m.GridExpr(t).Eval(x) }

// CostObjective minimises Σ price·grid·dt over the configured cost basis.
func (m *Model) CostObjective() Objective {
	var e Expr
	for t := 0; t < m.Len(); t++ {
		k := m.window.Price(t) * m.window.StepHours(t)
		if k == 0 {
			continue
		}
		e = append(e, Term{m.vars.GridImport[t], k})
		if m.vars.GridExport != nil && m.opts.CostBasis == CostNet {
			e = append(e, Term{m.vars.GridExport[t], -k})
		}
	}
	return Objective{Sense: Minimize, Expr: e}
}

// DispatchObjective maximises Σ mask·(discharge − grid), ignoring price.
func (m *Model) DispatchObjective() Objective {
	var e Expr
	for t := 0; t < m.Len(); t++ {
		if !m.event.Masked(t) {
			continue
		}
		e = append(e, Term{m.vars.Discharge[t], 1})
		for _, g := range m.GridExpr(t) {
			e = append(e, Term{g.Var, -g.Coef})
		}
	}
	return Objective{Sense: Maximize, Expr: e}
}

// WithFixings returns a new model whose grid exchange at each key step equals
// the mapped value. The receiver is left untouched.
func (m *Model) WithFixings(grid map[int]float64) *Model {
	cp := *m
	cp.problem = m.problem.Clone()
	for t := 0; t < m.Len(); t++ {
		v, ok := grid[t]
		if !ok {
			continue
		}
		cp.problem.Add(Eq(fmt.Sprintf("dispatch_fix[%d]", t), m.GridExpr(t), v))
	}
	return &cp
}
