package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Default solver tolerances.
const (
	DefaultSimplexTolerance     = 1e-7
	DefaultIntegerTolerance     = 1e-6
	DefaultFeasibilityTolerance = 1e-6
	DefaultMaxNodes             = 5000
)

// ErrNodeLimit is reported when branching stops with open nodes left, whether
// or not an integral solution was found.
var ErrNodeLimit = errors.New("branch and bound node limit reached")

var errEmptyRowInfeasible = errors.New("constraint without free variables is violated")

// BranchAndBound solves mixed binary programs by depth-first branching over
// LP relaxations solved with the gonum simplex.
//
// Before branching, fractional binaries whose objective coefficient is zero
// are snapped to 0 or 1 when every constraint they appear in stays satisfied.
// Only genuine conflicts (for instance a timestep that would both charge and
// discharge) lead to new nodes.
type BranchAndBound struct {
	SimplexTolerance     float64
	IntegerTolerance     float64
	FeasibilityTolerance float64
	MaxNodes             int
}

// NewBranchAndBound returns a solver with default tolerances.
func NewBranchAndBound() BranchAndBound {
	return BranchAndBound{
		SimplexTolerance:     DefaultSimplexTolerance,
		IntegerTolerance:     DefaultIntegerTolerance,
		FeasibilityTolerance: DefaultFeasibilityTolerance,
		MaxNodes:             DefaultMaxNodes,
	}
}

func (s BranchAndBound) withDefaults() BranchAndBound {
	if s.SimplexTolerance <= 0 {
		s.SimplexTolerance = DefaultSimplexTolerance
	}
	if s.IntegerTolerance <= 0 {
		s.IntegerTolerance = DefaultIntegerTolerance
	}
	if s.FeasibilityTolerance <= 0 {
		s.FeasibilityTolerance = DefaultFeasibilityTolerance
	}
	if s.MaxNodes <= 0 {
		s.MaxNodes = DefaultMaxNodes
	}
	return s
}

type bbNode struct {
	fixed map[Var]float64
	bound float64
}

// lpSolve points to the LP routine used for relaxations. Tests override it to
// simulate numerical failures.
var lpSolve = lp.Simplex

// Solve implements Solver. ctx is only checked before the first relaxation.
func (s BranchAndBound) Solve(ctx context.Context, p *Problem, obj Objective) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return solveErr(StatusFailure, err)
	}
	s = s.withDefaults()

	// Work on a minimisation.
	c := make([]float64, p.NumVars())
	for _, t := range obj.Expr {
		c[t.Var] += t.Coef
	}
	if obj.Sense == Maximize {
		for i := range c {
			c[i] = -c[i]
		}
	}

	best := math.Inf(1)
	var bestX []float64
	nodes := 0
	limitHit := false
	stack := []bbNode{{bound: math.Inf(-1)}}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.bound >= best-s.gap(best) {
			continue
		}
		if nodes >= s.MaxNodes {
			limitHit = true
			break
		}
		nodes++

		val, x, err := s.relax(p, c, n.fixed)
		switch {
		case err == nil:
		case errors.Is(err, lp.ErrInfeasible), errors.Is(err, errEmptyRowInfeasible):
			continue
		case errors.Is(err, lp.ErrUnbounded):
			if nodes == 1 {
				return solveErr(StatusUnbounded, err)
			}
			continue
		default:
			return solveErr(StatusFailure, err)
		}
		if val >= best-s.gap(best) {
			continue
		}

		branch := s.snap(p, c, x)
		if branch < 0 {
			best, bestX = val, x
			continue
		}
		down := cloneFixed(n.fixed)
		down[branch] = 0
		up := cloneFixed(n.fixed)
		up[branch] = 1
		// Explore the nearer side first.
		if x[branch] >= 0.5 {
			stack = append(stack, bbNode{fixed: down, bound: val}, bbNode{fixed: up, bound: val})
		} else {
			stack = append(stack, bbNode{fixed: up, bound: val}, bbNode{fixed: down, bound: val})
		}
	}

	if limitHit {
		// An incumbent found before the limit is not proven optimal.
		sol, err := solveErr(StatusFailure, fmt.Errorf("%w after %d nodes", ErrNodeLimit, nodes))
		sol.Nodes = nodes
		return sol, err
	}
	if bestX == nil {
		return solveErr(StatusInfeasible, lp.ErrInfeasible)
	}
	objVal := obj.Value(bestX)
	return Solution{Status: StatusOptimal, Values: bestX, Objective: objVal, Nodes: nodes}, nil
}

func (s BranchAndBound) gap(best float64) float64 {
	if math.IsInf(best, 0) {
		return 0
	}
	return 1e-9 * math.Max(1, math.Abs(best))
}

// snap rounds fractional binaries in place where this keeps x feasible and
// leaves the objective unchanged. It returns the binary to branch on, or -1
// when x is integral.
func (s BranchAndBound) snap(p *Problem, c []float64, x []float64) Var {
	lhs := make([]float64, p.NumConstraints())
	rows := make([][]int, p.NumVars())
	for i, con := range p.cons {
		lhs[i] = con.Expr.Eval(x)
		for _, t := range con.Expr {
			if rows[t.Var] == nil || rows[t.Var][len(rows[t.Var])-1] != i {
				rows[t.Var] = append(rows[t.Var], i)
			}
		}
	}

	branch := Var(-1)
	worst := 0.0
	for j := 0; j < p.NumVars(); j++ {
		v := Var(j)
		if !p.IsBinary(v) {
			continue
		}
		f := x[v]
		near := math.Round(f)
		if math.Abs(f-near) <= s.IntegerTolerance {
			x[v] = near
			continue
		}
		snapped := false
		if math.Abs(c[v]) <= 1e-12 {
			for _, cand := range []float64{near, 1 - near} {
				if s.fits(p, rows[v], lhs, v, cand-f) {
					for _, i := range rows[v] {
						lhs[i] += coefOf(p.cons[i].Expr, v) * (cand - f)
					}
					x[v] = cand
					snapped = true
					break
				}
			}
		}
		if snapped {
			continue
		}
		if d := math.Min(f, 1-f); d > worst {
			worst = d
			branch = v
		}
	}
	return branch
}

func (s BranchAndBound) fits(p *Problem, rows []int, lhs []float64, v Var, delta float64) bool {
	for _, i := range rows {
		con := p.cons[i]
		if !satisfies(con.Sense, lhs[i]+coefOf(con.Expr, v)*delta, con.RHS, s.FeasibilityTolerance) {
			return false
		}
	}
	return true
}

func coefOf(e Expr, v Var) float64 {
	var c float64
	for _, t := range e {
		if t.Var == v {
			c += t.Coef
		}
	}
	return c
}

func cloneFixed(m map[Var]float64) map[Var]float64 {
	out := make(map[Var]float64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// relax solves the LP relaxation with the given variables fixed and returns
// the minimised objective and a full assignment.
func (s BranchAndBound) relax(p *Problem, c []float64, fixed map[Var]float64) (float64, []float64, error) {
	sf, err := newStandardForm(p, c, fixed)
	if err != nil {
		return 0, nil, err
	}
	x := make([]float64, p.NumVars())
	for v, val := range fixed {
		x[v] = val
	}
	if sf.rows == 0 {
		return sf.offset, x, nil
	}
	A := mat.NewDense(sf.rows, len(sf.c), sf.a)
	opt, sol, err := lpSolve(sf.c, A, sf.b, s.SimplexTolerance, nil)
	if err != nil {
		return 0, nil, err
	}
	for col, v := range sf.cols {
		if v < 0 {
			continue
		}
		val := sol[col]
		if val < 0 {
			val = 0
		}
		x[v] = val
	}
	return opt + sf.offset, x, nil
}

// standardForm is min cᵀx s.t. Ax = b, x ≥ 0 with one slack column per
// inequality row. Fixed variables are substituted out and variables that
// appear nowhere are dropped.
type standardForm struct {
	c      []float64
	a      []float64 // row-major, rows × len(c)
	b      []float64
	rows   int
	cols   []Var // structural variable per column, -1 for slacks
	offset float64
}

type sfRow struct {
	coefs map[Var]float64
	sense Sense
	rhs   float64
}

func newStandardForm(p *Problem, c []float64, fixed map[Var]float64) (*standardForm, error) {
	var rows []sfRow
	used := make([]bool, p.NumVars())
	for _, con := range p.cons {
		r := sfRow{coefs: make(map[Var]float64, len(con.Expr)), sense: con.Sense, rhs: con.RHS}
		for _, t := range con.Expr {
			if val, ok := fixed[t.Var]; ok {
				r.rhs -= t.Coef * val
				continue
			}
			r.coefs[t.Var] += t.Coef
		}
		for v, k := range r.coefs {
			if k == 0 {
				delete(r.coefs, v)
			}
		}
		if len(r.coefs) == 0 {
			if !satisfies(con.Sense, 0, r.rhs, DefaultFeasibilityTolerance) {
				return nil, fmt.Errorf("%w: %s", errEmptyRowInfeasible, con.Name)
			}
			continue
		}
		for v := range r.coefs {
			used[v] = true
		}
		rows = append(rows, r)
	}
	for j := 0; j < p.NumVars(); j++ {
		v := Var(j)
		if _, ok := fixed[v]; ok {
			continue
		}
		if u := p.Upper(v); !math.IsInf(u, 1) {
			rows = append(rows, sfRow{coefs: map[Var]float64{v: 1}, sense: LessEq, rhs: u})
			used[v] = true
		}
	}

	sf := &standardForm{}
	colOf := make([]int, p.NumVars())
	for j := 0; j < p.NumVars(); j++ {
		v := Var(j)
		colOf[j] = -1
		if val, ok := fixed[v]; ok {
			sf.offset += c[j] * val
			continue
		}
		if !used[j] {
			if c[j] < 0 {
				return nil, fmt.Errorf("%w: variable %s", lp.ErrUnbounded, p.VarName(v))
			}
			continue
		}
		colOf[j] = len(sf.cols)
		sf.cols = append(sf.cols, v)
		sf.c = append(sf.c, c[j])
	}
	for _, r := range rows {
		if r.sense != Equal {
			sf.cols = append(sf.cols, -1)
			sf.c = append(sf.c, 0)
		}
	}
	sf.rows = len(rows)
	if sf.rows > len(sf.cols) {
		return nil, fmt.Errorf("lp: %d rows exceed %d columns", sf.rows, len(sf.cols))
	}

	n := len(sf.c)
	sf.a = make([]float64, sf.rows*n)
	sf.b = make([]float64, sf.rows)
	slack := n - countSlacks(rows)
	for i, r := range rows {
		for v, k := range r.coefs {
			sf.a[i*n+colOf[v]] = k
		}
		switch r.sense {
		case LessEq:
			sf.a[i*n+slack] = 1
			slack++
		case GreaterEq:
			sf.a[i*n+slack] = -1
			slack++
		}
		sf.b[i] = r.rhs
	}
	return sf, nil
}

func countSlacks(rows []sfRow) int {
	n := 0
	for _, r := range rows {
		if r.sense != Equal {
			n++
		}
	}
	return n
}
