// Package analysis summarizes fold histories.
//
//   - [Summarize]: per-replica convergence summary of one history
//   - [SummarizeEnsemble]: aggregates replica summaries
//   - [Trend]: least-squares slope of the metric against iteration
//
// # Example
//
//	history, _ := store.LoadHistory(runID, 0)
//	s := analysis.Summarize(history, 0.3)
//	if s.FirstNative > 0 {
//	    fmt.Printf("native after %d iterations\n", s.FirstNative)
//	}
package analysis
