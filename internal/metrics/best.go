package metrics

import (
	"math"

	"github.com/san-kum/gmxflow/internal/fold"
)

// Best is the lowest metric seen so far.
type Best struct {
	name string
	best float64
}

func NewBest() *Best {
	return &Best{name: "best_rmsd", best: math.Inf(1)}
}

func (b *Best) Name() string { return b.name }

func (b *Best) Observe(step fold.Step) {
	if step.Metric < b.best {
		b.best = step.Metric
	}
}

func (b *Best) Value() float64 { return b.best }

func (b *Best) Reset() { b.best = math.Inf(1) }
