// Package viz renders a running fold workflow in the terminal with
// Bubble Tea.
//
// A [Feed] is attached to each replica's controller as an observer and
// forwards every completed iteration to the program:
//
//	m := viz.NewModel("fs-peptide", 0.3, 0, replicas)
//	p := tea.NewProgram(m)
//	ctrl.AddObserver(viz.NewFeed(p, replica))
//
// # Key Bindings
//
//	Tab/←/→ - Switch replica
//	T       - Cycle color themes
//	Q       - Quit the view (the run keeps going)
package viz
