package gmx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/logger"
)

const (
	DefaultBinary     = "gmx"
	DefaultForceField = "amber99sb-ildn"
	DefaultWater      = "tip3p"
	DefaultRMSGroups  = "Backbone Backbone\n"
)

type ForceField struct {
	Name  string
	Water string
}

func DefaultForceFieldParams() ForceField {
	return ForceField{Name: DefaultForceField, Water: DefaultWater}
}

// Topology holds the pdb2gmx outputs.
type Topology struct {
	Top   string
	Posre string
	Conf  string
}

// SimulationInput is a preprocessed run input (.tpr).
type SimulationInput struct {
	TPR string
}

// MDRunRequest describes one mdrun invocation.
type MDRunRequest struct {
	Input   string
	Deffnm  string
	Restart fold.Checkpoint
	Budget  time.Duration
	// Flags are appended verbatim; an empty value emits a bare flag.
	Flags map[string]string
}

// Toolkit wraps the GROMACS tools the workflow needs. All outputs land in
// WorkDir, which NewToolkit makes absolute.
type Toolkit struct {
	Binary    string
	WorkDir   string
	RMSGroups string

	runner Runner
	log    *slog.Logger
}

func NewToolkit(binary, workDir string, r Runner) *Toolkit {
	if binary == "" {
		binary = DefaultBinary
	}
	if r == nil {
		r = ExecRunner{}
	}
	return &Toolkit{
		Binary:    binary,
		WorkDir:   absPath(workDir),
		RMSGroups: DefaultRMSGroups,
		runner:    r,
	}
}

func (t *Toolkit) WithLogger(l *slog.Logger) *Toolkit {
	t.log = l
	return t
}

func (t *Toolkit) logger() *slog.Logger {
	if t.log != nil {
		return t.log
	}
	return logger.Default
}

// CheckInputs fails with a MissingInputError naming every absent path.
func CheckInputs(paths ...string) error {
	missing := make([]string, 0)
	for _, p := range paths {
		if !exists(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &MissingInputError{Paths: missing}
	}
	return nil
}

func (t *Toolkit) ensureWorkDir() error {
	if t.WorkDir == "" {
		return nil
	}
	return os.MkdirAll(t.WorkDir, 0755)
}

func (t *Toolkit) op(args []string, in, out map[string]string, stdin string) Operation {
	return Operation{
		Executable:  t.Binary,
		Args:        args,
		InputFiles:  in,
		OutputFiles: out,
		Stdin:       stdin,
		WorkDir:     t.WorkDir,
	}
}

// Prepare builds a topology from a starting structure with pdb2gmx.
func (t *Toolkit) Prepare(ctx context.Context, structure string, ff ForceField) (*Topology, error) {
	if err := CheckInputs(structure); err != nil {
		return nil, err
	}
	if err := t.ensureWorkDir(); err != nil {
		return nil, err
	}
	if ff.Name == "" {
		ff.Name = DefaultForceField
	}
	if ff.Water == "" {
		ff.Water = DefaultWater
	}

	op := t.op(
		[]string{"pdb2gmx", "-ff", ff.Name, "-water", ff.Water},
		map[string]string{"-f": structure},
		map[string]string{"-p": "topol.top", "-i": "posre.itp", "-o": "conf.gro"},
		"",
	)
	t.logger().Info("preparing topology", "structure", structure, "force_field", ff.Name, "water", ff.Water)
	out, err := op.Run(ctx, t.runner)
	if err != nil {
		return nil, fmt.Errorf("pdb2gmx: %w", err)
	}
	return &Topology{Top: out.File("-p"), Posre: out.File("-i"), Conf: out.File("-o")}, nil
}

// Assemble preprocesses a topology and run parameters into a .tpr with grompp.
func (t *Toolkit) Assemble(ctx context.Context, top *Topology, mdp string) (*SimulationInput, error) {
	if top == nil {
		return nil, fmt.Errorf("grompp: %w: no topology", ErrMissingInput)
	}
	if err := CheckInputs(mdp, top.Conf, top.Top); err != nil {
		return nil, err
	}
	if err := t.ensureWorkDir(); err != nil {
		return nil, err
	}

	op := t.op(
		[]string{"grompp"},
		map[string]string{"-f": mdp, "-c": top.Conf, "-p": top.Top},
		map[string]string{"-o": "run.tpr"},
		"",
	)
	t.logger().Info("assembling simulation input", "mdp", mdp)
	out, err := op.Run(ctx, t.runner)
	if err != nil {
		return nil, fmt.Errorf("grompp: %w", err)
	}
	return &SimulationInput{TPR: out.File("-o")}, nil
}

// MDRun runs mdrun once. An empty restart is a cold start and emits no -cpi.
func (t *Toolkit) MDRun(ctx context.Context, req MDRunRequest) (fold.StepResult, error) {
	if err := CheckInputs(req.Input); err != nil {
		return fold.StepResult{}, err
	}
	if !req.Restart.IsZero() {
		if err := CheckInputs(string(req.Restart)); err != nil {
			return fold.StepResult{}, err
		}
	}
	if err := t.ensureWorkDir(); err != nil {
		return fold.StepResult{}, err
	}

	deffnm := filepath.Join(t.WorkDir, req.Deffnm)
	checkpoint := deffnm + ".cpt"
	args := []string{"mdrun", "-s", absPath(req.Input), "-deffnm", deffnm, "-cpo", checkpoint, "-noappend"}
	if !req.Restart.IsZero() {
		args = append(args, "-cpi", absPath(string(req.Restart)))
	}
	if req.Budget > 0 {
		args = append(args, "-maxh", FormatHours(req.Budget))
	}
	args = append(args, flagArgs(req.Flags)...)

	log := t.logger().With("deffnm", req.Deffnm)
	log.Info("running mdrun", "restart", string(req.Restart), "budget", req.Budget)

	cmd := Command{Path: t.Binary, Args: args, Dir: t.WorkDir}
	if _, err := t.runner.Run(ctx, cmd); err != nil {
		return fold.StepResult{}, fmt.Errorf("mdrun: %w", err)
	}

	traj, err := findTrajectory(deffnm)
	if err != nil {
		return fold.StepResult{}, err
	}
	if !exists(checkpoint) {
		return fold.StepResult{}, fmt.Errorf("mdrun: %w: %s", ErrMissingOutput, checkpoint)
	}
	log.Debug("mdrun finished", "trajectory", traj, "checkpoint", checkpoint)

	return fold.StepResult{
		Trajectory: fold.Trajectory{Name: req.Deffnm, Dir: t.WorkDir, Path: traj},
		Restart:    fold.Checkpoint(checkpoint),
	}, nil
}

// Simulate implements fold.Simulator. Every iteration gets its own output
// prefix so nothing is appended or overwritten.
func (t *Toolkit) Simulate(ctx context.Context, req fold.StepRequest) (fold.StepResult, error) {
	return t.MDRun(ctx, MDRunRequest{
		Input:   req.Input,
		Deffnm:  IterationName(req.Iteration),
		Restart: req.Restart,
		Budget:  req.Budget,
		Flags:   req.Flags,
	})
}

// RMS computes the RMSD of a trajectory against a reference with gmx rms and
// returns the path of the .xvg it wrote.
func (t *Toolkit) RMS(ctx context.Context, traj fold.Trajectory, reference string) (string, error) {
	if err := CheckInputs(reference, traj.Path); err != nil {
		return "", err
	}
	name := "rmsd.xvg"
	if traj.Name != "" {
		name = traj.Name + "-rmsd.xvg"
	}
	op := t.op(
		[]string{"rms"},
		map[string]string{"-s": reference, "-f": traj.Path},
		map[string]string{"-o": name},
		t.RMSGroups,
	)
	out, err := op.Run(ctx, t.runner)
	if err != nil {
		return "", fmt.Errorf("rms: %w", err)
	}
	return out.File("-o"), nil
}

func IterationName(iteration int) string {
	return fmt.Sprintf("fold-%04d", iteration)
}

// FormatHours renders a budget for -maxh.
func FormatHours(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'g', -1, 64)
}

func flagArgs(flags map[string]string) []string {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k)
		if v := flags[k]; v != "" {
			args = append(args, v)
		}
	}
	return args
}

// findTrajectory prefers compressed .xtc output over full-precision .trr.
// With -noappend mdrun may insert a .partNNNN suffix.
func findTrajectory(deffnm string) (string, error) {
	for _, ext := range []string{".xtc", ".trr"} {
		matches, err := filepath.Glob(globEscape(deffnm) + "*" + ext)
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[len(matches)-1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoTrajectory, deffnm)
}

func globEscape(p string) string {
	out := make([]rune, 0, len(p))
	for _, r := range p {
		switch r {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
