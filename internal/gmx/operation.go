package gmx

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Operation is a generic command-line tool call with file-valued flags.
// The tool runs inside WorkDir, so input paths are made absolute and output
// paths are resolved relative to WorkDir.
type Operation struct {
	Executable  string
	Args        []string
	InputFiles  map[string]string
	OutputFiles map[string]string
	Stdin       string
	WorkDir     string
}

// Outputs maps each output flag to its resolved path.
type Outputs map[string]string

func (o Outputs) File(flag string) string { return o[flag] }

// Command renders the operation. Flags are emitted in sorted order so the
// command line is stable.
func (op Operation) Command() (Command, Outputs) {
	dir := op.WorkDir
	if dir != "" {
		dir = absPath(dir)
	}
	args := append([]string(nil), op.Args...)
	for _, flag := range sortedKeys(op.InputFiles) {
		path := op.InputFiles[flag]
		if dir != "" {
			path = absPath(path)
		}
		args = append(args, flag, path)
	}
	outputs := make(Outputs, len(op.OutputFiles))
	for _, flag := range sortedKeys(op.OutputFiles) {
		path := op.OutputFiles[flag]
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		outputs[flag] = path
		args = append(args, flag, path)
	}
	return Command{Path: op.Executable, Args: args, Dir: dir, Stdin: op.Stdin}, outputs
}

// Run executes the operation and checks every declared output exists.
func (op Operation) Run(ctx context.Context, r Runner) (Outputs, error) {
	cmd, outputs := op.Command()
	if _, err := r.Run(ctx, cmd); err != nil {
		return nil, err
	}
	missing := make([]string, 0)
	for _, flag := range sortedKeys(outputs) {
		if !exists(outputs[flag]) {
			missing = append(missing, outputs[flag])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s did not write %s", ErrMissingOutput, cmd.Args[0], strings.Join(missing, ", "))
	}
	return outputs, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// absPath resolves p against the current directory. Empty paths stay empty.
func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
