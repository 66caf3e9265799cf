package metrics

import (
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
)

// WallTime sums the elapsed wall-clock time of every iteration, in hours.
type WallTime struct {
	name  string
	total time.Duration
}

func NewWallTime() *WallTime {
	return &WallTime{name: "wall_hours"}
}

func (w *WallTime) Name() string { return w.name }

func (w *WallTime) Observe(step fold.Step) {
	w.total += step.Elapsed
}

func (w *WallTime) Value() float64 { return w.total.Hours() }

func (w *WallTime) Reset() { w.total = 0 }
