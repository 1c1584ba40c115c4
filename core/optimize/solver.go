package optimize

import (
	"context"
	"fmt"
)

// Status is the terminal outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	default:
		return "SOLVER_FAILURE"
	}
}

// Solution holds the outcome of a solve. Values is indexed by Var and only set
// when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Nodes     int
}

// Value returns the solved value of v.
func (s Solution) Value(v Var) float64 { return s.Values[v] }

// Solver computes an optimal assignment for a mixed binary/continuous
// problem. Implementations must return a non-nil error for every status other
// than StatusOptimal. A call that has started is not interrupted by ctx.
type Solver interface {
	Solve(ctx context.Context, p *Problem, obj Objective) (Solution, error)
}

// SolveError carries the status and diagnostic of a non-optimal solve.
type SolveError struct {
	Status Status
	Err    error
}

func (e *SolveError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

func solveErr(s Status, err error) (Solution, error) {
	return Solution{Status: s}, &SolveError{Status: s, Err: err}
}
