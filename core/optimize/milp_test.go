package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBranchAndBoundContinuous(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", math.Inf(1))
	y := p.AddVar("y", math.Inf(1))
	p.Add(
		Le("c1", Expr{{x, 1}, {y, 2}}, 4),
		Le("c2", Expr{{x, 3}, {y, 1}}, 6),
	)

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Sense: Maximize, Expr: Expr{{x, 1}, {y, 1}}})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 1.6, sol.Value(x), 1e-6)
	assert.InDelta(t, 1.2, sol.Value(y), 1e-6)
	assert.InDelta(t, 2.8, sol.Objective, 1e-6)
	assert.Equal(t, 1, sol.Nodes)
}

func TestBranchAndBoundKnapsack(t *testing.T) {
	p := NewProblem()
	a := p.AddBinary("a")
	b := p.AddBinary("b")
	c := p.AddBinary("c")
	p.Add(Le("weight", Expr{{a, 2}, {b, 3}, {c, 1}}, 5))

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Sense: Maximize, Expr: Expr{{a, 5}, {b, 4}, {c, 3}}})
	require.NoError(t, err)
	assert.InDelta(t, 9, sol.Objective, 1e-6)
	assert.InDelta(t, 1, sol.Value(a), 1e-9)
	assert.InDelta(t, 1, sol.Value(b), 1e-9)
	assert.InDelta(t, 0, sol.Value(c), 1e-9)
	assert.Greater(t, sol.Nodes, 1)
	assert.Empty(t, p.Violations(sol.Values, 1e-6))
}

func TestBranchAndBoundExclusiveIndicator(t *testing.T) {
	// in and out share a binary so only one can be positive.
	p := NewProblem()
	in := p.AddVar("in", math.Inf(1))
	out := p.AddVar("out", math.Inf(1))
	z := p.AddBinary("z")
	p.Add(
		Le("in_on", Expr{{in, 1}, {z, -4}}, 0),
		Le("out_on", Expr{{out, 1}, {z, 4}}, 4),
		Le("budget", Expr{{in, 1}, {out, 1}}, 6),
	)

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Sense: Maximize, Expr: Expr{{in, 1}, {out, 1}}})
	require.NoError(t, err)
	assert.InDelta(t, 4, sol.Objective, 1e-6)
	assert.True(t, sol.Value(in) < 1e-9 || sol.Value(out) < 1e-9, "in=%v out=%v", sol.Value(in), sol.Value(out))
	assert.Empty(t, p.Violations(sol.Values, 1e-6))
}

func TestBranchAndBoundInfeasible(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", math.Inf(1))
	p.Add(Le("low", Expr{{x, 1}}, 1), Ge("high", Expr{{x, 1}}, 2))

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Expr: Expr{{x, 1}}})
	require.Error(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
	var se *SolveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusInfeasible, se.Status)
}

func TestBranchAndBoundInfeasibleAfterFixing(t *testing.T) {
	p := NewProblem()
	z := p.AddBinary("z")
	x := p.AddVar("x", math.Inf(1))
	p.Add(Eq("half", Expr{{z, 2}}, 1), Le("x", Expr{{x, 1}}, 1))

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Expr: Expr{{x, 1}}})
	require.Error(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestBranchAndBoundUnbounded(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", math.Inf(1))
	p.Add(Ge("floor", Expr{{x, 1}}, 1))

	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Sense: Maximize, Expr: Expr{{x, 1}}})
	require.Error(t, err)
	assert.Equal(t, StatusUnbounded, sol.Status)
}

func TestBranchAndBoundLPFailure(t *testing.T) {
	orig := lpSolve
	t.Cleanup(func() { lpSolve = orig })
	singular := errors.New("singular basis")
	lpSolve = func(c []float64, A mat.Matrix, b []float64, tol float64, initialBasic []int) (float64, []float64, error) {
		return 0, nil, singular
	}

	p := NewProblem()
	x := p.AddVar("x", 5)
	p.Add(Ge("floor", Expr{{x, 1}}, 1))
	sol, err := NewBranchAndBound().Solve(context.Background(), p, Objective{Expr: Expr{{x, 1}}})
	require.Error(t, err)
	assert.Equal(t, StatusFailure, sol.Status)
	assert.ErrorIs(t, err, singular)
}

func TestBranchAndBoundCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProblem()
	x := p.AddVar("x", 1)
	p.Add(Le("x", Expr{{x, 1}}, 1))

	sol, err := NewBranchAndBound().Solve(ctx, p, Objective{Expr: Expr{{x, 1}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailure, sol.Status)
}

func TestBranchAndBoundNodeLimit(t *testing.T) {
	p := NewProblem()
	a := p.AddBinary("a")
	b := p.AddBinary("b")
	c := p.AddBinary("c")
	// Only fractional relaxations exist until the last branch.
	p.Add(Eq("odd", Expr{{a, 2}, {b, 2}, {c, 2}}, 3))

	s := NewBranchAndBound()
	s.MaxNodes = 2
	sol, err := s.Solve(context.Background(), p, Objective{Expr: Expr{{a, 1}, {b, 1}, {c, 1}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeLimit)
	assert.Equal(t, StatusFailure, sol.Status)
}

func TestBranchAndBoundNodeLimitWithIncumbent(t *testing.T) {
	values := []float64{10, 7, 9, 4, 12, 3, 11, 6}
	weights := []float64{5, 4, 6, 3, 7, 2, 8, 4}
	p := NewProblem()
	var weight, obj Expr
	for i := range values {
		v := p.AddBinary(fmt.Sprintf("item[%d]", i))
		weight = append(weight, Term{v, weights[i]})
		obj = append(obj, Term{v, values[i]})
	}
	p.Add(Le("capacity", weight, 17.5))
	objective := Objective{Sense: Maximize, Expr: obj}

	full, err := NewBranchAndBound().Solve(context.Background(), p, objective)
	require.NoError(t, err)
	require.Greater(t, full.Nodes, 2)

	// Every truncated search fails, including those that already hold an
	// integral solution.
	for limit := 1; limit < full.Nodes; limit++ {
		s := NewBranchAndBound()
		s.MaxNodes = limit
		sol, err := s.Solve(context.Background(), p, objective)
		require.Error(t, err, "limit %d", limit)
		assert.ErrorIs(t, err, ErrNodeLimit, "limit %d", limit)
		assert.Equal(t, StatusFailure, sol.Status, "limit %d", limit)
		assert.Nil(t, sol.Values, "limit %d", limit)
	}

	s := NewBranchAndBound()
	s.MaxNodes = full.Nodes
	sol, err := s.Solve(context.Background(), p, objective)
	require.NoError(t, err)
	assert.InDelta(t, full.Objective, sol.Objective, 1e-6)
}

func TestStandardFormDropsFixedAndUnused(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", math.Inf(1))
	y := p.AddVar("y", 3)
	p.AddVar("unused", math.Inf(1))
	z := p.AddBinary("z")
	p.Add(Le("xy", Expr{{x, 1}, {y, 1}, {z, 2}}, 4))

	sf, err := newStandardForm(p, []float64{1, 1, 0, 1}, map[Var]float64{z: 1})
	require.NoError(t, err)
	// xy row and the bound on y.
	assert.Equal(t, 2, sf.rows)
	assert.Equal(t, []Var{x, y, -1, -1}, sf.cols)
	assert.Equal(t, []float64{2, 3}, sf.b)
	assert.InDelta(t, 1, sf.offset, 1e-12)
}

func TestProblemCloneIsIndependent(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 1)
	p.Add(Le("x", Expr{{x, 1}}, 1))
	cp := p.Clone()
	cp.Add(Ge("x_floor", Expr{{x, 1}}, 0.5))
	cp.cons[0].Expr[0].Coef = 7

	assert.Equal(t, 1, p.NumConstraints())
	assert.Equal(t, 1.0, p.Constraint(0).Expr[0].Coef)
	assert.Equal(t, 2, cp.NumConstraints())
}
