package metrics

import "github.com/san-kum/gmxflow/internal/fold"

// NativeRate is the fraction of iterations whose metric fell below the
// threshold.
type NativeRate struct {
	name      string
	threshold float64
	hits      int
	samples   int
}

func NewNativeRate(threshold float64) *NativeRate {
	return &NativeRate{
		name:      "native_rate",
		threshold: threshold,
	}
}

func (n *NativeRate) Name() string {
	return n.name
}

func (n *NativeRate) Observe(step fold.Step) {
	n.samples++
	if step.Metric < n.threshold {
		n.hits++
	}
}

func (n *NativeRate) Value() float64 {
	if n.samples == 0 {
		return 0
	}
	return float64(n.hits) / float64(n.samples)
}

func (n *NativeRate) Reset() {
	n.hits = 0
	n.samples = 0
}
