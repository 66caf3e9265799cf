package fold

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/gmxflow/internal/compare"
	"github.com/san-kum/gmxflow/internal/logger"
)

type Controller struct {
	sim       Simulator
	extractor MetricExtractor
	cmp       Comparator
	cfg       Config
	observers []Observer
	log       *slog.Logger
}

func New(sim Simulator, extractor MetricExtractor, cfg Config) *Controller {
	if cfg.Criterion == "" {
		cfg.Criterion = CriterionLatest
	}
	return &Controller{
		sim:       sim,
		extractor: extractor,
		cmp:       compare.Less,
		cfg:       cfg,
		observers: make([]Observer, 0),
	}
}

func (c *Controller) AddObserver(o Observer) { c.observers = append(c.observers, o) }

func (c *Controller) WithComparator(cmp Comparator) *Controller {
	c.cmp = cmp
	return c
}

func (c *Controller) WithLogger(l *slog.Logger) *Controller {
	c.log = l
	return c
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return logger.Default
}

// Run iterates from a cold start until the stopping condition holds. The
// returned state is never nil; on error it holds the last completed iteration.
func (c *Controller) Run(ctx context.Context, req Request) (*State, error) {
	st := NewState()
	if err := c.cfg.validate(); err != nil {
		return &st, err
	}
	if req.Input == "" {
		return &st, fmt.Errorf("%w: simulation input is required", ErrInvalidConfig)
	}
	if c.sim == nil || c.extractor == nil {
		return &st, fmt.Errorf("%w: simulator and metric extractor are required", ErrInvalidConfig)
	}

	log := c.logger()
	for {
		if err := ctx.Err(); err != nil {
			log.Warn("fold loop canceled", "iterations", st.Iterations, "best", st.Best)
			return &st, err
		}

		next, err := c.Step(ctx, req, st)
		if err != nil {
			log.Error("fold iteration failed", "error", err)
			return &st, err
		}
		st = next

		step, _ := st.LastStep()
		for _, o := range c.observers {
			o.OnIteration(step)
		}

		if st.Converged && c.cfg.StopOnNative {
			log.Info("native state reached", "iterations", st.Iterations, "metric", st.Last, "best", st.Best)
			return &st, nil
		}
		if c.cfg.MaxIterations > 0 && st.Iterations >= c.cfg.MaxIterations {
			if st.Converged {
				log.Info("sampling finished", "iterations", st.Iterations, "best", st.Best)
				return &st, nil
			}
			log.Warn("iteration cap reached", "iterations", st.Iterations, "best", st.Best)
			return &st, &NotConvergedError{Iterations: st.Iterations, Best: st.Best}
		}
	}
}

// Step runs one loop body against st and returns the successor state. st is
// not modified; on error the caller keeps st.
func (c *Controller) Step(ctx context.Context, req Request, st State) (State, error) {
	iteration := st.Iterations + 1
	log := c.logger().With("iteration", iteration)
	if st.Restart.IsZero() {
		log.Info("starting iteration", "restart", "cold")
	} else {
		log.Info("starting iteration", "restart", string(st.Restart))
	}

	start := time.Now()
	res, err := c.sim.Simulate(ctx, StepRequest{
		Input:     req.Input,
		Restart:   st.Restart,
		Budget:    c.cfg.Budget,
		Iteration: iteration,
		Flags:     c.cfg.Flags,
	})
	if err != nil {
		return st, &StepError{Iteration: iteration, Stage: StageSimulate, Kind: ErrSimulationFailure, Wrapped: err}
	}

	next := st
	next.Restart = res.Restart
	log.Info("bound checkpoint", "checkpoint", string(res.Restart), "trajectory", res.Trajectory.Path)

	metric, err := c.extractor.Extract(ctx, res.Trajectory, req.Reference)
	if err != nil {
		return st, &StepError{Iteration: iteration, Stage: StageAnalyze, Kind: ErrAnalysisFailure, Wrapped: err}
	}
	if math.IsNaN(metric) {
		return st, &StepError{Iteration: iteration, Stage: StageAnalyze, Kind: ErrAnalysisFailure, Wrapped: fmt.Errorf("metric is NaN")}
	}

	next.Iterations = iteration
	next.Last = metric
	if metric < next.Best {
		next.Best = metric
	}

	value := metric
	if c.cfg.Criterion == CriterionBest {
		value = next.Best
	}
	native := c.cmp(value, c.cfg.Threshold)
	if native {
		next.Converged = true
	}
	log.Info("measured metric", "metric", metric, "best", next.Best, "threshold", c.cfg.Threshold, "native", native)

	step := Step{
		Iteration:  iteration,
		Metric:     metric,
		Best:       next.Best,
		Native:     native,
		Restart:    res.Restart,
		Trajectory: res.Trajectory,
		Elapsed:    time.Since(start),
	}
	next.History = append(st.History[:len(st.History):len(st.History)], step)
	return next, nil
}
