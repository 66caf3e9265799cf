// Package fold implements the "fold until native state" convergence loop.
//
// Each iteration advances the simulation for a bounded wall-clock budget,
// reduces the produced trajectory to a scalar metric and compares it against a
// threshold:
//
//   - [Simulator]: advances the system, returns a trajectory and a checkpoint
//   - [MetricExtractor]: reduces a trajectory to a metric (minimum RMSD)
//   - [Comparator]: strict less-than predicate deciding convergence
//   - [Controller]: threads [State] from one iteration to the next
//
// # Example
//
//	ctrl := fold.New(toolkit, gmx.NewRMSDExtractor(toolkit), fold.Config{
//	    Threshold:    0.3,
//	    Budget:       2 * time.Hour,
//	    StopOnNative: true,
//	})
//	state, err := ctrl.Run(ctx, fold.Request{Input: "run.tpr", Reference: "ref.pdb"})
//
// # Ordering
//
// Iterations are strictly sequential: iteration N never starts before
// iteration N-1 has produced its checkpoint. A Controller holds no run state of
// its own, so one Controller may serve several replicas as long as each
// replica calls Run with its own request.
package fold
