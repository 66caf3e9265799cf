package metrics

import (
	"sort"

	"github.com/san-kum/gmxflow/internal/fold"
)

// Metric accumulates a summary over the iterations of one fold run.
type Metric interface {
	Name() string
	Observe(step fold.Step)
	Value() float64
	Reset()
}

// Set fans fold iterations out to a group of metrics. It satisfies
// fold.Observer.
type Set struct {
	metrics []Metric
}

func NewSet(ms ...Metric) *Set {
	return &Set{metrics: ms}
}

// Default returns the metrics recorded for every replica.
func Default(threshold float64) *Set {
	return NewSet(
		NewBest(),
		NewNativeRate(threshold),
		NewWallTime(),
		NewImprovement(),
	)
}

func (s *Set) Add(m Metric) { s.metrics = append(s.metrics, m) }

func (s *Set) OnIteration(step fold.Step) {
	for _, m := range s.metrics {
		m.Observe(step)
	}
}

func (s *Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.metrics))
	for _, m := range s.metrics {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}

func (s *Set) Reset() {
	for _, m := range s.metrics {
		m.Reset()
	}
}

// Replay observes a recorded history from scratch.
func (s *Set) Replay(history []fold.Step) map[string]float64 {
	s.Reset()
	for _, step := range history {
		s.OnIteration(step)
	}
	return s.Values()
}
