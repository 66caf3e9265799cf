package fold

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Checkpoint is an opaque restart token. The zero value means cold start.
type Checkpoint string

func (c Checkpoint) IsZero() bool { return c == "" }

// Trajectory is the output of one simulation step.
type Trajectory struct {
	Name string
	Dir  string
	Path string
}

// StepRequest is handed to the Simulator once per iteration.
type StepRequest struct {
	Input     string
	Restart   Checkpoint
	Budget    time.Duration
	Iteration int
	Flags     map[string]string
}

// StepResult is what a Simulator returns for one iteration.
type StepResult struct {
	Trajectory Trajectory
	Restart    Checkpoint
}

type Simulator interface {
	Simulate(ctx context.Context, req StepRequest) (StepResult, error)
}

type MetricExtractor interface {
	Extract(ctx context.Context, traj Trajectory, reference string) (float64, error)
}

// Comparator decides whether a metric satisfies the threshold.
type Comparator func(value, threshold float64) bool

// Observer is notified after every completed iteration.
type Observer interface {
	OnIteration(step Step)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step Step)

func (f ObserverFunc) OnIteration(step Step) { f(step) }

// Criterion selects the value compared against the threshold.
type Criterion string

const (
	CriterionLatest Criterion = "latest"
	CriterionBest   Criterion = "best"
)

type Config struct {
	Threshold float64
	Budget    time.Duration
	// MaxIterations caps the loop; 0 leaves it unbounded.
	MaxIterations int
	// StopOnNative ends the loop at the first iteration whose metric satisfies
	// the threshold. When false the loop samples until MaxIterations.
	StopOnNative bool
	Criterion    Criterion
	Flags        map[string]string
}

func DefaultConfig() Config {
	return Config{
		Threshold:    0.3,
		Budget:       2 * time.Hour,
		StopOnNative: true,
		Criterion:    CriterionLatest,
	}
}

func (c Config) validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.Budget < 0 {
		return fmt.Errorf("%w: budget cannot be negative, got %v", ErrInvalidConfig, c.Budget)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations cannot be negative, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if !c.StopOnNative && c.MaxIterations == 0 {
		return fmt.Errorf("%w: sampling without stop_on_native requires max iterations", ErrInvalidConfig)
	}
	switch c.Criterion {
	case "", CriterionLatest, CriterionBest:
	default:
		return fmt.Errorf("%w: unknown criterion %q", ErrInvalidConfig, c.Criterion)
	}
	return nil
}

// Request carries the per-run inputs of the loop.
type Request struct {
	// Input is the prepared simulation input (a .tpr path for GROMACS).
	Input string
	// Reference is the structure metrics are computed against. Read-only.
	Reference string
}

// Step records one completed iteration.
type Step struct {
	Iteration  int
	Metric     float64
	Best       float64
	Native     bool
	Restart    Checkpoint
	Trajectory Trajectory
	Elapsed    time.Duration
}

// State is the loop-carried state threaded between iterations.
type State struct {
	Best       float64
	Last       float64
	Converged  bool
	Restart    Checkpoint
	Iterations int
	History    []Step
}

// NewState returns the cold-start state.
func NewState() State {
	return State{
		Best: math.Inf(1),
		Last: math.Inf(1),
	}
}

// LastStep returns the most recent iteration record.
func (s State) LastStep() (Step, bool) {
	if len(s.History) == 0 {
		return Step{}, false
	}
	return s.History[len(s.History)-1], true
}
