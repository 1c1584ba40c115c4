package optimize

import (
	"fmt"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// InfeasibleError reports that the solver found no feasible point for a
// stage. In dispatch mode Stage is StageDispatch: the mandated behaviour
// cannot be delivered under the physical limits.
type InfeasibleError struct {
	Stage model.Stage
	Err   error
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("%s stage infeasible: %v", e.Stage, e.Err)
}

func (e *InfeasibleError) Unwrap() error { return e.Err }

// SolverFailureError reports a non-optimal outcome that is not a plain
// infeasibility, including an infeasible cost stage after a successful
// dispatch stage.
type SolverFailureError struct {
	Stage  model.Stage
	Status Status
	Err    error
}

func (e *SolverFailureError) Error() string {
	return fmt.Sprintf("%s stage solver failure (%s): %v", e.Stage, e.Status, e.Err)
}

func (e *SolverFailureError) Unwrap() error { return e.Err }
