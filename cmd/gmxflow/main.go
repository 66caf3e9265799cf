package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/san-kum/gmxflow/internal/config"
	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/logger"
)

// env resolves GMXFLOW_* variables and the persistent flags bound to them.
var env *viper.Viper

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	logFormat  string

	binary        string
	threshold     float64
	budget        time.Duration
	maxIterations int
	sample        bool
	criterion     string
	noInitial     bool
	replicas      int
	replicaIndex  int
	maxParallel   int

	live      bool
	archive   bool
	reference string
	outPath   string
	showBest  bool
)

func main() {
	env = config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "gmxflow",
		Short:         "fold a structure with GROMACS until it reaches its native state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (text, json)")
	_ = env.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data"))
	_ = env.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "prepare the system and fold every replica",
		RunE:  func(cmd *cobra.Command, args []string) error { return runWorkflow(cmd) },
	}
	loopFlags(runCmd)
	runCmd.Flags().BoolVar(&noInitial, "no-initial", false, "skip the initial unconditioned run")
	runCmd.Flags().IntVar(&replicas, "replicas", 1, "number of replicas")
	runCmd.Flags().IntVar(&replicaIndex, "replica-index", -1, "run only this replica")
	runCmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "replicas running at once (0 = all)")
	runCmd.Flags().BoolVar(&live, "live", false, "show the live view")
	runCmd.Flags().BoolVar(&archive, "archive", false, "compress per-iteration rmsd files into the run store")

	foldCmd := &cobra.Command{
		Use:   "fold [tpr]",
		Short: "run the fold loop over an existing simulation input",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return foldInput(cmd, args[0]) },
	}
	loopFlags(foldCmd)
	foldCmd.Flags().StringVar(&reference, "reference", "", "reference structure (default from config)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "validate configuration and input files",
		RunE:  func(cmd *cobra.Command, args []string) error { return checkInputs(cmd) },
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the metric history of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&outPath, "out", "o", "", "write a chart (png, svg, pdf) instead of printing")
	plotCmd.Flags().BoolVar(&showBest, "best", false, "also draw the running best")

	summaryCmd := &cobra.Command{
		Use:   "summary [run_id]",
		Short: "summarize the convergence of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  summarizeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportXVGCmd := &cobra.Command{
		Use:   "export-xvg [run_id] [replica]",
		Short: "export a replica history as an xvg file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportXVG,
	}
	exportXVGCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %-12s %s\n", p, config.PresetDescription(p))
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, foldCmd, checkCmd, listCmd, plotCmd, summaryCmd, exportCmd, exportXVGCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loopFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&binary, "gmx", "gmx", "GROMACS binary")
	cmd.Flags().Float64Var(&threshold, "threshold", config.DefaultThreshold, "native-state rmsd threshold (nm)")
	cmd.Flags().DurationVar(&budget, "budget", config.DefaultBudget, "wall-clock budget per iteration (0 = none)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (0 = unbounded)")
	cmd.Flags().BoolVar(&sample, "sample", false, "keep iterating after the native state until the cap")
	cmd.Flags().StringVar(&criterion, "criterion", string(fold.CriterionLatest), "value compared to the threshold (latest, best)")
}

// loadConfig resolves defaults, preset, config file, environment and flags,
// in increasing precedence. A config file is read over the preset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(env)

	flags := cmd.Flags()
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("gmx") {
		cfg.Gromacs.Binary = binary
	}
	if flags.Changed("threshold") {
		cfg.Fold.Threshold = threshold
	}
	if flags.Changed("budget") {
		cfg.Fold.Budget = budget
	}
	if flags.Changed("max-iterations") {
		cfg.Fold.MaxIterations = maxIterations
	}
	if flags.Changed("sample") {
		cfg.Fold.StopOnNative = !sample
	}
	if flags.Changed("criterion") {
		cfg.Fold.Criterion = criterion
	}
	if flags.Changed("no-initial") {
		cfg.Fold.InitialRun = !noInitial
	}
	if flags.Changed("replicas") {
		cfg.Ensemble.Replicas = replicas
	}
	if flags.Changed("replica-index") {
		cfg.Ensemble.ReplicaIndex = replicaIndex
	}
	if flags.Changed("max-parallel") {
		cfg.Ensemble.MaxParallel = maxParallel
	}
	if flags.Changed("archive") {
		cfg.Storage.Archive = archive
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	var l *slog.Logger
	if cfg.Log.Format == "json" {
		l = logger.New(cfg.Log.Level, w)
	} else {
		l = logger.NewText(cfg.Log.Level, w)
	}
	logger.SetDefault(l)
	return l
}

// storeDir is the data directory for commands that read existing runs.
func storeDir() string {
	if dir := env.GetString("storage.data_dir"); dir != "" {
		return dir
	}
	return dataDir
}
