package gmx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/logger"
)

// fileFlags lists the file-valued flags each tool reads and writes.
var fileFlags = map[string]struct{ in, out []string }{
	"pdb2gmx": {in: []string{"-f"}, out: []string{"-p", "-i", "-o"}},
	"grompp":  {in: []string{"-f", "-c", "-p"}, out: []string{"-o"}},
	"mdrun":   {in: []string{"-s", "-cpi"}, out: []string{"-deffnm", "-cpo"}},
	"rms":     {in: []string{"-s", "-f"}, out: []string{"-o"}},
}

// dirGromacs resolves relative paths against the command's directory the
// way a child process would, then hands the rewritten command to fakeGromacs.
type dirGromacs struct {
	fakeGromacs
}

func (d *dirGromacs) Run(ctx context.Context, c Command) (*Output, error) {
	tool := c.Args[0]
	files := fileFlags[tool]
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Dir, p)
	}

	args := append([]string(nil), c.Args...)
	for i := 1; i+1 < len(args); i++ {
		for _, flag := range files.in {
			if args[i] == flag {
				args[i+1] = resolve(args[i+1])
				if _, err := os.Stat(args[i+1]); err != nil {
					return &Output{}, fmt.Errorf("%s: cannot open %s (cwd %s)", tool, args[i+1], c.Dir)
				}
			}
		}
		for _, flag := range files.out {
			if args[i] == flag {
				args[i+1] = resolve(args[i+1])
				if err := os.MkdirAll(filepath.Dir(args[i+1]), 0755); err != nil {
					return nil, err
				}
			}
		}
	}
	c.Args = args
	return d.fakeGromacs.Run(ctx, c)
}

func TestToolkitRelativePaths(t *testing.T) {
	t.Chdir(t.TempDir())
	sys := filepath.Join("input", "fs-peptide")
	if err := os.MkdirAll(sys, 0755); err != nil {
		t.Fatal(err)
	}
	inputs := writeInputs(t, sys, "start0.pdb", "ref.pdb", "grompp.mdp")
	structure, reference, mdp := inputs[0], inputs[1], inputs[2]

	fake := &dirGromacs{fakeGromacs{rmsd: []string{"0 0.4\n10 0.2\n"}}}
	workDir := filepath.Join("work", "run1", "replica-00")
	tk := NewToolkit("gmx", workDir, fake).WithLogger(logger.Discard())
	if !filepath.IsAbs(tk.WorkDir) {
		t.Fatalf("work dir should be absolute, got %s", tk.WorkDir)
	}

	ctx := context.Background()
	top, err := tk.Prepare(ctx, structure, DefaultForceFieldParams())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	input, err := tk.Assemble(ctx, top, mdp)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	first, err := tk.Simulate(ctx, fold.StepRequest{Input: input.TPR, Iteration: 1})
	if err != nil {
		t.Fatalf("first iteration: %v", err)
	}
	// Restart from a relative checkpoint path, as a user would pass it.
	rel, err := filepath.Rel(".", string(first.Restart))
	if err != nil {
		rel = string(first.Restart)
	}
	if _, err := tk.Simulate(ctx, fold.StepRequest{Input: input.TPR, Restart: fold.Checkpoint(rel), Iteration: 2}); err != nil {
		t.Fatalf("restarted iteration: %v", err)
	}

	metric, err := NewRMSDExtractor(tk).Extract(ctx, first.Trajectory, reference)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if metric != 0.2 {
		t.Errorf("expected 0.2, got %v", metric)
	}

	for _, name := range []string{"topol.top", "conf.gro", "run.tpr", "fold-0001.cpt", "fold-0002.xtc"} {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			t.Errorf("expected %s in the work dir: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(workDir, "work")); !os.IsNotExist(err) {
		t.Error("outputs must not be nested under the work dir")
	}
}
