package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/gmxflow/internal/analysis"
	"github.com/san-kum/gmxflow/internal/export"
	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(storeDir())
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tTIME\tTHRESHOLD\tBUDGET\tREPLICAS\tNATIVE\tSTATE")

	for _, run := range runs {
		native := 0
		for _, r := range run.Replicas {
			if r.Converged {
				native++
			}
		}
		state := "running"
		if run.Finished {
			state = "finished"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%s\t%d\t%d\t%s\n",
			run.ID,
			run.Workflow,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Threshold,
			run.Budget,
			run.ReplicaCount,
			native,
			state,
		)
	}

	return w.Flush()
}

// loadHistories reads the history of every replica that reported an outcome.
func loadHistories(st *storage.Store, meta *storage.RunMetadata) ([]export.Series, error) {
	series := make([]export.Series, 0, len(meta.Replicas))
	for _, r := range meta.Replicas {
		history, err := st.LoadHistory(meta.ID, r.Index)
		if err != nil {
			return nil, err
		}
		series = append(series, export.Series{Name: fmt.Sprintf("replica-%02d", r.Index), History: history})
	}
	return series, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(storeDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	series, err := loadHistories(st, meta)
	if err != nil {
		return err
	}

	if outPath != "" {
		opts := export.PlotOptions{
			Title:     fmt.Sprintf("%s (%s)", meta.Workflow, meta.ID),
			Threshold: meta.Threshold,
			ShowBest:  showBest,
		}
		if err := export.HistoryPlot(outPath, series, opts); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outPath)
		return nil
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("workflow: %s\n\n", meta.Workflow)

	plotted := 0
	for _, s := range series {
		if len(s.History) == 0 {
			continue
		}
		values := make([]float64, len(s.History))
		line := make([]float64, len(s.History))
		for i, step := range s.History {
			values[i] = step.Metric
			line[i] = meta.Threshold
		}
		graph := asciigraph.PlotMany([][]float64{values, line},
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.Red),
			asciigraph.Caption(fmt.Sprintf("%s rmsd per iteration (threshold %.3f)", s.Name, meta.Threshold)),
		)
		fmt.Println(graph)
		fmt.Println()
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("no data to plot")
	}
	return nil
}

func summarizeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(storeDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	series, err := loadHistories(st, meta)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("workflow: %s\n", meta.Workflow)
	fmt.Printf("threshold: %.3f  budget: %s  criterion: %s\n\n", meta.Threshold, meta.Budget, meta.Criterion)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPLICA\tITER\tFIRST_NATIVE\tBEST\tBEST_AT\tLAST\tMEAN\tSTDDEV\tTREND")
	summaries := make([]analysis.Summary, 0, len(series))
	for _, s := range series {
		sum := analysis.Summarize(s.History, meta.Threshold)
		summaries = append(summaries, sum)
		first := "-"
		if sum.FirstNative > 0 {
			first = strconv.Itoa(sum.FirstNative)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.4f\t%d\t%.4f\t%.4f\t%.4f\t%+.4f\n",
			s.Name, sum.Iterations, first, sum.Best, sum.BestIteration, sum.Last, sum.Mean, sum.StdDev, sum.Slope)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(summaries) > 1 {
		e := analysis.SummarizeEnsemble(summaries)
		best := "-"
		if e.BestReplica >= 0 {
			best = series[e.BestReplica].Name
		}
		fmt.Printf("\nensemble: %d/%d native (%.0f%%), mean iterations to native %.1f, best %.4f (%s)\n",
			e.Converged, e.Replicas, 100*e.ConvergedFraction, e.MeanToNative, e.Best, best)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(storeDir())
	data, err := st.Export(args[0])
	if err != nil {
		return err
	}
	if outPath == "" {
		return storage.WriteJSON(os.Stdout, data)
	}
	if err := storage.ExportJSON(outPath, data); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func exportXVG(cmd *cobra.Command, args []string) error {
	replica := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid replica %q: %w", args[1], err)
		}
		replica = n
	}

	st := storage.New(storeDir())
	history, err := st.LoadHistory(args[0], replica)
	if err != nil {
		return err
	}
	return writeXVG(history)
}

func writeXVG(history []fold.Step) error {
	if outPath == "" {
		return storage.WriteXVG(os.Stdout, history)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := storage.WriteXVG(f, history); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}
