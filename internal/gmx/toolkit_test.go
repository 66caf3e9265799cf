package gmx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/logger"
)

func newTestToolkit(t *testing.T, fake *fakeGromacs) (*Toolkit, string) {
	t.Helper()
	dir := t.TempDir()
	tk := NewToolkit("gmx", filepath.Join(dir, "work"), fake).WithLogger(logger.Discard())
	return tk, dir
}

func writeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		if err := os.WriteFile(paths[i], []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func TestCheckInputs(t *testing.T) {
	dir := t.TempDir()
	present := writeInputs(t, dir, "start0.pdb")[0]
	absent1 := filepath.Join(dir, "ref.pdb")
	absent2 := filepath.Join(dir, "grompp.mdp")

	if err := CheckInputs(present); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := CheckInputs(present, absent1, absent2)
	var missing *MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Paths, []string{absent1, absent2}) {
		t.Errorf("expected both absent paths, got %v", missing.Paths)
	}
	if !errors.Is(err, ErrMissingInput) {
		t.Error("expected ErrMissingInput")
	}
}

func TestPrepareAndAssemble(t *testing.T) {
	fake := &fakeGromacs{}
	tk, dir := newTestToolkit(t, fake)
	in := writeInputs(t, dir, "start0.pdb", "grompp.mdp")

	top, err := tk.Prepare(context.Background(), in[0], ForceField{})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if filepath.Base(top.Top) != "topol.top" || filepath.Base(top.Conf) != "conf.gro" {
		t.Errorf("unexpected topology %+v", top)
	}

	wantArgs := []string{"pdb2gmx", "-ff", "amber99sb-ildn", "-water", "tip3p", "-f", in[0]}
	if got := fake.commands[0].Args[:len(wantArgs)]; !reflect.DeepEqual(got, wantArgs) {
		t.Errorf("pdb2gmx args = %v, want prefix %v", got, wantArgs)
	}

	tpr, err := tk.Assemble(context.Background(), top, in[1])
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if filepath.Base(tpr.TPR) != "run.tpr" {
		t.Errorf("unexpected tpr %s", tpr.TPR)
	}
	flags := parseFlags(fake.commands[1].Args[1:])
	if flags["-f"] != in[1] || flags["-c"] != top.Conf || flags["-p"] != top.Top {
		t.Errorf("unexpected grompp flags %v", flags)
	}
}

func TestPrepareMissingStructureRunsNothing(t *testing.T) {
	fake := &fakeGromacs{}
	tk, dir := newTestToolkit(t, fake)

	_, err := tk.Prepare(context.Background(), filepath.Join(dir, "start0.pdb"), DefaultForceFieldParams())
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if len(fake.commands) != 0 {
		t.Errorf("no tool should run, got %v", fake.tools())
	}
}

func TestSimulateColdStartAndRestart(t *testing.T) {
	fake := &fakeGromacs{}
	tk, dir := newTestToolkit(t, fake)
	tpr := writeInputs(t, dir, "run.tpr")[0]

	first, err := tk.Simulate(context.Background(), fold.StepRequest{
		Input:     tpr,
		Budget:    2 * time.Hour,
		Iteration: 1,
	})
	if err != nil {
		t.Fatalf("cold start failed: %v", err)
	}
	cold := parseFlags(fake.commands[0].Args[1:])
	if _, ok := cold["-cpi"]; ok {
		t.Error("cold start must not pass -cpi")
	}
	if cold["-maxh"] != "2" {
		t.Errorf("expected -maxh 2, got %q", cold["-maxh"])
	}
	if _, ok := cold["-noappend"]; !ok {
		t.Error("expected -noappend")
	}
	if first.Trajectory.Name != "fold-0001" || filepath.Ext(first.Trajectory.Path) != ".xtc" {
		t.Errorf("unexpected trajectory %+v", first.Trajectory)
	}

	second, err := tk.Simulate(context.Background(), fold.StepRequest{
		Input:     tpr,
		Restart:   first.Restart,
		Budget:    90 * time.Second,
		Iteration: 2,
		Flags:     map[string]string{"-nt": "4", "-v": ""},
	})
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	warm := parseFlags(fake.commands[1].Args[1:])
	if warm["-cpi"] != string(first.Restart) {
		t.Errorf("expected -cpi %s, got %q", first.Restart, warm["-cpi"])
	}
	if warm["-maxh"] != "0.025" {
		t.Errorf("expected -maxh 0.025, got %q", warm["-maxh"])
	}
	if warm["-nt"] != "4" {
		t.Errorf("expected extra flag -nt 4, got %v", warm)
	}
	if _, ok := warm["-v"]; !ok {
		t.Error("expected bare -v flag")
	}
	if second.Restart == first.Restart {
		t.Error("each iteration must produce its own checkpoint")
	}
}

func TestSimulateFailures(t *testing.T) {
	t.Run("command", func(t *testing.T) {
		fake := &fakeGromacs{fail: "mdrun"}
		tk, dir := newTestToolkit(t, fake)
		tpr := writeInputs(t, dir, "run.tpr")[0]

		_, err := tk.Simulate(context.Background(), fold.StepRequest{Input: tpr, Iteration: 1})
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 1 {
			t.Fatalf("expected CommandError, got %v", err)
		}
		if !errors.Is(err, ErrCommandFailed) {
			t.Error("expected ErrCommandFailed")
		}
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		tk, dir := newTestToolkit(t, &fakeGromacs{})
		tpr := writeInputs(t, dir, "run.tpr")[0]

		_, err := tk.Simulate(context.Background(), fold.StepRequest{
			Input:     tpr,
			Restart:   fold.Checkpoint(filepath.Join(dir, "gone.cpt")),
			Iteration: 2,
		})
		if !errors.Is(err, ErrMissingInput) {
			t.Errorf("expected ErrMissingInput, got %v", err)
		}
	})
}

func TestRMSDExtractor(t *testing.T) {
	fake := &fakeGromacs{rmsd: []string{
		"# gmx rms\n@    title \"RMSD\"\n0 0.9\n10 0.45\n20 0.52\n",
		"0 0.25\n",
	}}
	tk, dir := newTestToolkit(t, fake)
	ref := writeInputs(t, dir, "ref.pdb")[0]
	if err := os.MkdirAll(tk.WorkDir, 0755); err != nil {
		t.Fatal(err)
	}
	traj := fold.Trajectory{Name: "fold-0001", Path: filepath.Join(tk.WorkDir, "fold-0001.xtc")}
	touch(traj.Path)

	ex := NewRMSDExtractor(tk)
	got, err := ex.Extract(context.Background(), traj, ref)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if got != 0.45 {
		t.Errorf("expected minimum 0.45, got %v", got)
	}
	if stdin := fake.commands[0].Stdin; stdin != "Backbone Backbone\n" {
		t.Errorf("unexpected group selection %q", stdin)
	}

	got, err = ex.Extract(context.Background(), traj, ref)
	if err != nil {
		t.Fatalf("single-row extract failed: %v", err)
	}
	if got != 0.25 {
		t.Errorf("expected 0.25, got %v", got)
	}
}

func TestOperationCommand(t *testing.T) {
	op := Operation{
		Executable:  "gmx",
		Args:        []string{"rms"},
		InputFiles:  map[string]string{"-s": "/in/ref.pdb", "-f": "/in/traj.xtc"},
		OutputFiles: map[string]string{"-o": "rmsd.xvg"},
		WorkDir:     "/work",
	}
	cmd, outputs := op.Command()
	want := []string{"rms", "-f", "/in/traj.xtc", "-s", "/in/ref.pdb", "-o", "/work/rmsd.xvg"}
	if !reflect.DeepEqual(cmd.Args, want) {
		t.Errorf("args = %v, want %v", cmd.Args, want)
	}
	if outputs.File("-o") != "/work/rmsd.xvg" {
		t.Errorf("unexpected output path %s", outputs.File("-o"))
	}
}

func TestFormatHours(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2 * time.Hour, "2"},
		{30 * time.Minute, "0.5"},
		{36 * time.Second, "0.01"},
	}
	for _, tt := range tests {
		if got := FormatHours(tt.in); got != tt.want {
			t.Errorf("FormatHours(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
