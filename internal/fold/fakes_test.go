package fold

import (
	"context"
	"errors"
	"fmt"
)

// scriptedSim hands out checkpoints "cpt-N" and records what it was given.
type scriptedSim struct {
	restarts []Checkpoint
	failAt   int
	err      error
}

func (s *scriptedSim) Simulate(ctx context.Context, req StepRequest) (StepResult, error) {
	s.restarts = append(s.restarts, req.Restart)
	if s.failAt > 0 && req.Iteration == s.failAt {
		if s.err == nil {
			s.err = errors.New("mdrun exited with status 1")
		}
		return StepResult{}, s.err
	}
	name := fmt.Sprintf("fold-%04d", req.Iteration)
	return StepResult{
		Trajectory: Trajectory{Name: name, Path: name + ".xtc"},
		Restart:    Checkpoint(fmt.Sprintf("cpt-%d", req.Iteration)),
	}, nil
}

func (s *scriptedSim) calls() int { return len(s.restarts) }

// scriptedMetrics returns the metrics in order, repeating the last one.
type scriptedMetrics struct {
	values []float64
	seen   []Trajectory
	failAt int
}

func (m *scriptedMetrics) Extract(ctx context.Context, traj Trajectory, reference string) (float64, error) {
	m.seen = append(m.seen, traj)
	n := len(m.seen)
	if m.failAt > 0 && n == m.failAt {
		return 0, errors.New("rmsd.xvg: no data rows")
	}
	if n > len(m.values) {
		return m.values[len(m.values)-1], nil
	}
	return m.values[n-1], nil
}
