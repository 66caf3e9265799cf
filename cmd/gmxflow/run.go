package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/gmxflow/internal/analysis"
	"github.com/san-kum/gmxflow/internal/config"
	"github.com/san-kum/gmxflow/internal/ensemble"
	"github.com/san-kum/gmxflow/internal/experiment"
	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/gmx"
	"github.com/san-kum/gmxflow/internal/logger"
	"github.com/san-kum/gmxflow/internal/metrics"
	"github.com/san-kum/gmxflow/internal/storage"
	"github.com/san-kum/gmxflow/internal/tui"
	"github.com/san-kum/gmxflow/internal/viz"
)

func runWorkflow(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(cfg.Storage.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	run, err := st.Create(newMetadata(cfg))
	if err != nil {
		return err
	}

	// The live view owns the terminal, so logs go to the run directory.
	var logOut io.Writer = os.Stderr
	if live {
		f, err := os.Create(filepath.Join(run.Dir, "gmxflow.log"))
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log := setupLogging(cfg, logOut).With("run", run.ID)
	log.Info("starting workflow", "workflow", cfg.Workflow, "inputs", cfg.SystemDir(), "replicas", cfg.Ensemble.Replicas)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ens := cfg.EnsembleConfig()
	var prog *tea.Program
	if live {
		model := viz.NewModel(fmt.Sprintf("gmxflow %s", run.ID), cfg.Fold.Threshold, cfg.Fold.MaxIterations, ens.Replicas())
		prog = tea.NewProgram(model, tea.WithAltScreen())
	}
	progress := tui.NewProgress(os.Stdout)

	replica := func(ctx context.Context, r ensemble.Replica) (*experiment.Result, error) {
		workDir := r.Dir(filepath.Join(cfg.Storage.WorkDir, run.ID))
		rlog := log.With("replica", r.Index)

		toolkit := gmx.NewToolkit(cfg.Gromacs.Binary, workDir, gmx.ExecRunner{}).WithLogger(rlog)
		toolkit.RMSGroups = cfg.Gromacs.RMSGroups

		rec, err := run.Recorder(r.Index)
		if err != nil {
			return nil, err
		}
		defer rec.Close()

		set := metrics.Default(cfg.Fold.Threshold)
		observers := []fold.Observer{rec, set}

		exp := experiment.New(experimentConfig(cfg, r.Index)).WithLogger(rlog)
		var feed *viz.Feed
		if prog != nil {
			feed = viz.NewFeed(prog, r.Index)
			observers = append(observers, feed)
			exp.OnStatus(feed.Status)
		} else {
			observers = append(observers, progress.Replica(r.Index))
		}
		if err := exp.Setup(toolkit, gmx.NewRMSDExtractor(toolkit), observers...); err != nil {
			return nil, err
		}

		res, err := exp.Run(ctx)
		if feed != nil {
			feed.Done(res.Fold, err)
		}
		if rerr := run.Report(outcome(r.Index, res.Fold, set.Values(), err)); rerr != nil {
			rlog.Warn("failed to record outcome", "error", rerr)
		}
		if cfg.Storage.Archive {
			files, _ := filepath.Glob(filepath.Join(workDir, "*-rmsd.xvg"))
			if _, aerr := run.Archive(r.Index, files...); aerr != nil {
				rlog.Warn("failed to archive analysis files", "error", aerr)
			}
		}

		// A replica that ran out of iterations does not cancel its siblings.
		if errors.Is(err, fold.ErrNotConverged) {
			return res, nil
		}
		return res, err
	}

	start := time.Now()
	var results []*experiment.Result
	if prog != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			results, err = ensemble.Run(ctx, ens, replica)
			prog.Quit()
		}()
		_, perr := prog.Run()
		// Leaving the view early cancels the replicas still running.
		stop()
		<-done
		if perr != nil {
			return perr
		}
	} else {
		results, err = ensemble.Run(ctx, ens, replica)
	}

	if ferr := run.Finish(); ferr != nil {
		log.Warn("failed to finish run", "error", ferr)
	}

	fmt.Printf("\ncompleted in %v\n", time.Since(start).Truncate(time.Second))
	fmt.Printf("run id: %s\n", run.ID)
	if err != nil {
		return err
	}
	return reportResults(cfg, results)
}

func foldInput(cmd *cobra.Command, tpr string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogging(cfg, os.Stderr)

	ref := reference
	if ref == "" {
		ref = cfg.ReferencePath()
	}
	if err := gmx.CheckInputs(tpr, ref); err != nil {
		return err
	}

	st := storage.New(cfg.Storage.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	meta := newMetadata(cfg)
	meta.ReplicaCount = 1
	run, err := st.Create(meta)
	if err != nil {
		return err
	}
	log = log.With("run", run.ID)

	rec, err := run.Recorder(0)
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolkit := gmx.NewToolkit(cfg.Gromacs.Binary, filepath.Join(cfg.Storage.WorkDir, run.ID), gmx.ExecRunner{}).WithLogger(log)
	toolkit.RMSGroups = cfg.Gromacs.RMSGroups

	set := metrics.Default(cfg.Fold.Threshold)
	ctrl := fold.New(toolkit, gmx.NewRMSDExtractor(toolkit), cfg.FoldConfig()).WithLogger(log)
	ctrl.AddObserver(rec)
	ctrl.AddObserver(set)
	ctrl.AddObserver(tui.NewProgress(os.Stdout).Replica(0))

	state, err := ctrl.Run(ctx, fold.Request{Input: tpr, Reference: ref})
	if rerr := run.Report(outcome(0, state, set.Values(), err)); rerr != nil {
		log.Warn("failed to record outcome", "error", rerr)
	}
	if ferr := run.Finish(); ferr != nil {
		log.Warn("failed to finish run", "error", ferr)
	}

	fmt.Printf("\nrun id: %s\n", run.ID)
	if err != nil {
		return err
	}
	fmt.Printf("native state after %d iterations (rmsd %.4f, checkpoint %s)\n", state.Iterations, state.Last, state.Restart)
	return nil
}

func checkInputs(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("workflow: %s\n", cfg.Workflow)
	fmt.Printf("inputs:   %s\n", cfg.SystemDir())
	if err := gmx.CheckInputs(cfg.RequiredInputs()...); err != nil {
		return err
	}
	for _, p := range cfg.RequiredInputs() {
		fmt.Printf("  ok  %s\n", p)
	}
	path, err := exec.LookPath(cfg.Gromacs.Binary)
	if err != nil {
		return fmt.Errorf("gromacs binary %q not found: %w", cfg.Gromacs.Binary, err)
	}
	fmt.Printf("gromacs:  %s\n", path)
	return nil
}

func experimentConfig(cfg *config.Config, replica int) experiment.Config {
	return experiment.Config{
		Workflow:      cfg.Workflow,
		Replica:       replica,
		Structure:     cfg.StructurePath(),
		Reference:     cfg.ReferencePath(),
		MDP:           cfg.MDPPath(),
		ForceField:    cfg.ForceField(),
		Fold:          cfg.FoldConfig(),
		InitialRun:    cfg.Fold.InitialRun,
		InitialBudget: cfg.Fold.InitialBudget,
	}
}

func newMetadata(cfg *config.Config) storage.RunMetadata {
	return storage.RunMetadata{
		Workflow:      cfg.Workflow,
		Threshold:     cfg.Fold.Threshold,
		Budget:        cfg.Fold.Budget.String(),
		MaxIterations: cfg.Fold.MaxIterations,
		StopOnNative:  cfg.Fold.StopOnNative,
		Criterion:     cfg.Fold.Criterion,
		ReplicaCount:  cfg.Ensemble.Replicas,
	}
}

func outcome(replica int, st *fold.State, values map[string]float64, err error) storage.ReplicaOutcome {
	out := storage.ReplicaOutcome{Index: replica, Metrics: values}
	if st != nil {
		out.Iterations = st.Iterations
		out.Converged = st.Converged
		out.Checkpoint = string(st.Restart)
		if st.Iterations > 0 {
			best, last := st.Best, st.Last
			out.Best, out.Last = &best, &last
		}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func reportResults(cfg *config.Config, results []*experiment.Result) error {
	summaries := make([]analysis.Summary, 0, len(results))
	failed := 0
	for _, res := range results {
		if res == nil || res.Fold == nil {
			continue
		}
		s := analysis.Summarize(res.Fold.History, cfg.Fold.Threshold)
		summaries = append(summaries, s)
		status := "native"
		if !res.Fold.Converged {
			status = "not converged"
			failed++
		}
		fmt.Printf("replica-%02d: %s after %d iterations (best %.4f, last %.4f)\n",
			res.Replica, status, res.Fold.Iterations, s.Best, s.Last)
	}
	if len(summaries) > 1 {
		e := analysis.SummarizeEnsemble(summaries)
		fmt.Printf("\nensemble: %d/%d native, mean iterations to native %.1f, best %.4f\n",
			e.Converged, e.Replicas, e.MeanToNative, e.Best)
	}
	if failed > 0 {
		logger.Warn("replicas did not reach the native state", "count", failed)
		return fmt.Errorf("%w: %d of %d replicas", fold.ErrNotConverged, failed, len(summaries))
	}
	return nil
}
