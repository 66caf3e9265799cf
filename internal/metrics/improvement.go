package metrics

import (
	"math"

	"github.com/san-kum/gmxflow/internal/fold"
)

// Improvement is the drop from the first observed metric to the best one.
// Values are skipped until a finite first metric arrives.
type Improvement struct {
	name  string
	first float64
	best  float64
	seen  bool
}

func NewImprovement() *Improvement {
	return &Improvement{name: "improvement"}
}

func (m *Improvement) Name() string { return m.name }

func (m *Improvement) Observe(step fold.Step) {
	if math.IsInf(step.Metric, 0) {
		return
	}
	if !m.seen {
		m.first, m.best, m.seen = step.Metric, step.Metric, true
		return
	}
	if step.Metric < m.best {
		m.best = step.Metric
	}
}

func (m *Improvement) Value() float64 {
	if !m.seen {
		return 0
	}
	return m.first - m.best
}

func (m *Improvement) Reset() {
	m.first, m.best, m.seen = 0, 0, false
}
