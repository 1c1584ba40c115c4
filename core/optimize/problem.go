package optimize

import (
	"fmt"
	"math"
)

// Var indexes a decision variable of a Problem. Every variable has a lower
// bound of zero.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression. Repeated variables are summed.
type Expr []Term

// Eval returns the value of e at x.
func (e Expr) Eval(x []float64) float64 {
	var s float64
	for _, t := range e {
		s += t.Coef * x[t.Var]
	}
	return s
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	Equal
	GreaterEq
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case Equal:
		return "=="
	case GreaterEq:
		return ">="
	default:
		return "?"
	}
}

// Constraint is Expr Sense RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

func Le(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: LessEq, RHS: rhs}
}

func Eq(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: Equal, RHS: rhs}
}

func Ge(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: GreaterEq, RHS: rhs}
}

// Satisfied reports whether x meets c within tol.
func (c Constraint) Satisfied(x []float64, tol float64) bool {
	return satisfies(c.Sense, c.Expr.Eval(x), c.RHS, tol)
}

func satisfies(s Sense, lhs, rhs, tol float64) bool {
	switch s {
	case LessEq:
		return lhs <= rhs+tol
	case GreaterEq:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

type varDef struct {
	name   string
	binary bool
	upper  float64
}

// Problem is a mixed binary/continuous linear model. It only grows: callers
// needing a variant take a Clone first.
type Problem struct {
	vars []varDef
	cons []Constraint
}

// NewProblem returns an empty problem.
func NewProblem() *Problem { return &Problem{} }

// AddVar declares a continuous variable in [0, upper]. Use math.Inf(1) for no
// upper bound.
func (p *Problem) AddVar(name string, upper float64) Var {
	p.vars = append(p.vars, varDef{name: name, upper: upper})
	return Var(len(p.vars) - 1)
}

// AddBinary declares a variable restricted to {0, 1}.
func (p *Problem) AddBinary(name string) Var {
	p.vars = append(p.vars, varDef{name: name, binary: true, upper: 1})
	return Var(len(p.vars) - 1)
}

// Add appends constraints.
func (p *Problem) Add(cs ...Constraint) {
	p.cons = append(p.cons, cs...)
}

func (p *Problem) NumVars() int         { return len(p.vars) }
func (p *Problem) NumConstraints() int  { return len(p.cons) }
func (p *Problem) VarName(v Var) string { return p.vars[v].name }
func (p *Problem) IsBinary(v Var) bool  { return p.vars[v].binary }
func (p *Problem) Upper(v Var) float64  { return p.vars[v].upper }

// Constraint returns the i-th constraint.
func (p *Problem) Constraint(i int) Constraint { return p.cons[i] }

// Clone returns an independent copy.
func (p *Problem) Clone() *Problem {
	cp := &Problem{
		vars: append([]varDef(nil), p.vars...),
		cons: make([]Constraint, len(p.cons)),
	}
	for i, c := range p.cons {
		c.Expr = append(Expr(nil), c.Expr...)
		cp.cons[i] = c
	}
	return cp
}

// Violations lists the constraints and bounds that x breaks by more than tol.
// Binaries must be within tol of 0 or 1.
func (p *Problem) Violations(x []float64, tol float64) []string {
	var out []string
	for i, v := range p.vars {
		if x[i] < -tol || x[i] > v.upper+tol {
			out = append(out, fmt.Sprintf("%s=%g out of [0,%g]", v.name, x[i], v.upper))
		}
		if v.binary && math.Abs(x[i]) > tol && math.Abs(x[i]-1) > tol {
			out = append(out, fmt.Sprintf("%s=%g not binary", v.name, x[i]))
		}
	}
	for _, c := range p.cons {
		if lhs := c.Expr.Eval(x); !satisfies(c.Sense, lhs, c.RHS, tol) {
			out = append(out, fmt.Sprintf("%s: %g %s %g", c.Name, lhs, c.Sense, c.RHS))
		}
	}
	return out
}

// ObjectiveSense selects minimisation or maximisation.
type ObjectiveSense int

const (
	Minimize ObjectiveSense = iota
	Maximize
)

// Objective is the linear function to optimise.
type Objective struct {
	Sense ObjectiveSense
	Expr  Expr
}

// Value returns the objective at x.
func (o Objective) Value(x []float64) float64 { return o.Expr.Eval(x) }
