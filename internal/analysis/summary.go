package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/gmxflow/internal/fold"
)

// Summary describes one replica's fold history. FirstNative is the
// 1-based iteration of the first metric below the threshold, or 0.
type Summary struct {
	Iterations    int
	FirstNative   int
	Best          float64
	BestIteration int
	Last          float64
	Mean          float64
	StdDev        float64
	Median        float64
	Slope         float64
}

func Summarize(history []fold.Step, threshold float64) Summary {
	s := Summary{
		Iterations: len(history),
		Best:       math.Inf(1),
		Last:       math.Inf(1),
	}
	if len(history) == 0 {
		return s
	}

	values := metricValues(history)
	for i, v := range values {
		if v < threshold {
			s.FirstNative = history[i].Iteration
			break
		}
	}

	idx := floats.MinIdx(values)
	s.Best = values[idx]
	s.BestIteration = history[idx].Iteration
	s.Last = values[len(values)-1]
	s.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.Slope = Trend(history)
	return s
}

// Trend fits metric = a + b*iteration and returns b. Fewer than two
// iterations give 0.
func Trend(history []fold.Step) float64 {
	if len(history) < 2 {
		return 0
	}
	xs := make([]float64, len(history))
	for i, step := range history {
		xs[i] = float64(step.Iteration)
	}
	_, beta := stat.LinearRegression(xs, metricValues(history), nil, false)
	return beta
}

// EnsembleSummary aggregates replica summaries.
type EnsembleSummary struct {
	Replicas          int
	Converged         int
	ConvergedFraction float64
	// MeanToNative averages FirstNative over converged replicas.
	MeanToNative float64
	Best         float64
	BestReplica  int
}

func SummarizeEnsemble(summaries []Summary) EnsembleSummary {
	e := EnsembleSummary{Replicas: len(summaries), Best: math.Inf(1), BestReplica: -1}
	if len(summaries) == 0 {
		return e
	}

	toNative := make([]float64, 0, len(summaries))
	for i, s := range summaries {
		if s.FirstNative > 0 {
			e.Converged++
			toNative = append(toNative, float64(s.FirstNative))
		}
		if s.Best < e.Best {
			e.Best = s.Best
			e.BestReplica = i
		}
	}
	e.ConvergedFraction = float64(e.Converged) / float64(e.Replicas)
	if len(toNative) > 0 {
		e.MeanToNative = stat.Mean(toNative, nil)
	}
	return e
}

func metricValues(history []fold.Step) []float64 {
	values := make([]float64, len(history))
	for i, step := range history {
		values[i] = step.Metric
	}
	return values
}
