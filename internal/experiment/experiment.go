package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/gmx"
	"github.com/san-kum/gmxflow/internal/graph"
	"github.com/san-kum/gmxflow/internal/logger"
)

// Tools is the GROMACS surface a pipeline needs; *gmx.Toolkit satisfies it.
type Tools interface {
	fold.Simulator
	Prepare(ctx context.Context, structure string, ff gmx.ForceField) (*gmx.Topology, error)
	Assemble(ctx context.Context, top *gmx.Topology, mdp string) (*gmx.SimulationInput, error)
	MDRun(ctx context.Context, req gmx.MDRunRequest) (fold.StepResult, error)
}

type Config struct {
	Workflow   string
	Replica    int
	Structure  string
	Reference  string
	MDP        string
	ForceField gmx.ForceField
	Fold       fold.Config
	// InitialRun adds one unconditioned mdrun before the loop.
	InitialRun    bool
	InitialBudget time.Duration
}

// Result collects the outputs of every pipeline stage that ran.
type Result struct {
	Replica  int
	Topology *gmx.Topology
	Input    *gmx.SimulationInput
	// Trajectory is the output of the initial run, if one was configured.
	Trajectory *fold.Trajectory
	Fold       *fold.State
}

type Experiment struct {
	cfg       Config
	tools     Tools
	extractor fold.MetricExtractor
	observers []fold.Observer
	status    func(string)
	log       *slog.Logger
}

func New(cfg Config) *Experiment {
	return &Experiment{
		cfg: cfg,
		log: logger.With("workflow", cfg.Workflow, "replica", cfg.Replica),
	}
}

func (e *Experiment) Setup(tools Tools, extractor fold.MetricExtractor, observers ...fold.Observer) error {
	if tools == nil || extractor == nil {
		return fmt.Errorf("experiment: tools and extractor are required")
	}
	e.tools = tools
	e.extractor = extractor
	e.observers = append(e.observers, observers...)
	return nil
}

// OnStatus registers a callback for stage changes.
func (e *Experiment) OnStatus(fn func(string)) { e.status = fn }

func (e *Experiment) WithLogger(l *slog.Logger) *Experiment {
	e.log = l
	return e
}

func (e *Experiment) report(status string) {
	e.log.Info(status)
	if e.status != nil {
		e.status(status)
	}
}

// Build assembles the task graph and returns it with the handle of the
// fold node. The fold state is written to st even when the loop fails.
func (e *Experiment) Build(st **fold.State) (*graph.Graph, graph.Handle) {
	g := graph.New()

	topology := g.MustAdd("topology", func(ctx context.Context, in graph.Inputs) (any, error) {
		structure, err := graph.Get[string](in, "structure")
		if err != nil {
			return nil, err
		}
		ff, err := graph.Get[gmx.ForceField](in, "force_field")
		if err != nil {
			return nil, err
		}
		e.report("preparing topology")
		return e.tools.Prepare(ctx, structure, ff)
	}, map[string]graph.Input{
		"structure":   graph.Literal(e.cfg.Structure),
		"force_field": graph.Literal(e.cfg.ForceField),
	})

	input := g.MustAdd("input", func(ctx context.Context, in graph.Inputs) (any, error) {
		top, err := graph.Get[*gmx.Topology](in, "topology")
		if err != nil {
			return nil, err
		}
		mdp, err := graph.Get[string](in, "mdp")
		if err != nil {
			return nil, err
		}
		e.report("assembling simulation input")
		return e.tools.Assemble(ctx, top, mdp)
	}, map[string]graph.Input{
		"topology": graph.Ref(topology),
		"mdp":      graph.Literal(e.cfg.MDP),
	})

	foldInputs := map[string]graph.Input{
		"input":     graph.Ref(input),
		"reference": graph.Literal(e.cfg.Reference),
	}

	if e.cfg.InitialRun {
		initial := g.MustAdd("initial", func(ctx context.Context, in graph.Inputs) (any, error) {
			tpr, err := graph.Get[*gmx.SimulationInput](in, "input")
			if err != nil {
				return nil, err
			}
			e.report("running initial simulation")
			res, err := e.tools.MDRun(ctx, gmx.MDRunRequest{
				Input:  tpr.TPR,
				Deffnm: "md",
				Budget: e.cfg.InitialBudget,
				Flags:  e.cfg.Fold.Flags,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %w", fold.ErrSimulationFailure, err)
			}
			e.log.Info("generated trajectory", "trajectory", res.Trajectory.Path)
			return &res.Trajectory, nil
		}, map[string]graph.Input{
			"input": graph.Ref(input),
		})
		foldInputs["after"] = graph.Ref(initial)
	}

	loop := g.MustAdd("fold", func(ctx context.Context, in graph.Inputs) (any, error) {
		tpr, err := graph.Get[*gmx.SimulationInput](in, "input")
		if err != nil {
			return nil, err
		}
		reference, err := graph.Get[string](in, "reference")
		if err != nil {
			return nil, err
		}
		e.report("folding")

		ctrl := fold.New(e.tools, e.extractor, e.cfg.Fold).WithLogger(e.log)
		for _, o := range e.observers {
			ctrl.AddObserver(o)
		}
		state, err := ctrl.Run(ctx, fold.Request{Input: tpr.TPR, Reference: reference})
		*st = state
		if err != nil {
			return nil, err
		}
		return state, nil
	}, foldInputs)

	return g, loop
}

// Run checks the inputs, then evaluates the pipeline.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	res := &Result{Replica: e.cfg.Replica}
	if err := gmx.CheckInputs(e.cfg.Structure, e.cfg.Reference, e.cfg.MDP); err != nil {
		return res, err
	}

	var st *fold.State
	g, loop := e.Build(&st)
	err := g.Evaluate(ctx, loop)

	res.Fold = st
	if top, rerr := graph.Result[*gmx.Topology](g, g.Handle("topology")); rerr == nil {
		res.Topology = top
	}
	if in, rerr := graph.Result[*gmx.SimulationInput](g, g.Handle("input")); rerr == nil {
		res.Input = in
	}
	if traj, rerr := graph.Result[*fold.Trajectory](g, g.Handle("initial")); rerr == nil {
		res.Trajectory = traj
	}

	var nodeErr *graph.NodeError
	if errors.As(err, &nodeErr) {
		err = fmt.Errorf("%s: %w", nodeErr.Node, nodeErr.Wrapped)
	}
	if err != nil {
		e.log.Error("pipeline failed", "error", err)
		return res, err
	}
	e.log.Info("pipeline finished", "iterations", st.Iterations, "converged", st.Converged, "best", st.Best)
	return res, nil
}
