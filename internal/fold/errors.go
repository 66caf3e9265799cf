package fold

import (
	"errors"
	"fmt"
)

// Domain errors for loop execution.
var (
	// ErrSimulationFailure indicates the simulation step aborted or produced no
	// usable trajectory.
	ErrSimulationFailure = errors.New("fold: simulation failure")

	// ErrAnalysisFailure indicates the trajectory could not be reduced to a metric.
	ErrAnalysisFailure = errors.New("fold: analysis failure")

	// ErrNotConverged indicates the iteration cap was reached first.
	ErrNotConverged = errors.New("fold: not converged")

	// ErrInvalidConfig indicates a rejected loop configuration or request.
	ErrInvalidConfig = errors.New("fold: invalid configuration")
)

type Stage string

const (
	StageSimulate Stage = "simulate"
	StageAnalyze  Stage = "analyze"
)

// StepError ties a collaborator failure to the iteration and stage it
// happened in.
type StepError struct {
	Iteration int
	Stage     Stage
	Kind      error
	Wrapped   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("iteration %d (%s): %v: %v", e.Iteration, e.Stage, e.Kind, e.Wrapped)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Wrapped}
}

// NotConvergedError is returned when MaxIterations elapse without a native hit.
type NotConvergedError struct {
	Iterations int
	Best       float64
}

func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("fold: not converged after %d iterations (best %.4f)", e.Iterations, e.Best)
}

func (e *NotConvergedError) Unwrap() error {
	return ErrNotConverged
}
