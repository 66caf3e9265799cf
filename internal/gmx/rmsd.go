package gmx

import (
	"context"
	"fmt"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/xvg"
)

// RMSDExtractor reduces a trajectory to its minimum backbone RMSD against
// the reference structure.
type RMSDExtractor struct {
	toolkit *Toolkit
	// Column is the xvg column reduced; 1 is the first sampled quantity.
	Column   int
	SkipRows int
}

func NewRMSDExtractor(t *Toolkit) *RMSDExtractor {
	return &RMSDExtractor{toolkit: t, Column: 1}
}

func (e *RMSDExtractor) Extract(ctx context.Context, traj fold.Trajectory, reference string) (float64, error) {
	path, err := e.toolkit.RMS(ctx, traj, reference)
	if err != nil {
		return 0, err
	}
	series, err := xvg.ParseFile(path, xvg.Options{SkipRows: e.SkipRows})
	if err != nil {
		return 0, err
	}
	value, at, err := series.Min(e.Column)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	e.toolkit.logger().Debug("minimum rmsd", "xvg", path, "value", value, "time", at)
	return value, nil
}
