package gmx

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// fakeGromacs mimics the file side effects of the tools it is asked to run.
type fakeGromacs struct {
	commands []Command
	rmsd     []string
	fail     string
}

func (f *fakeGromacs) Run(ctx context.Context, c Command) (*Output, error) {
	f.commands = append(f.commands, c)
	tool := c.Args[0]
	if tool == f.fail {
		return &Output{Stderr: "Fatal error:\nsomething broke"}, &CommandError{
			Args:     append([]string{c.Path}, c.Args...),
			ExitCode: 1,
			Stderr:   "Fatal error:\nsomething broke",
		}
	}

	flags := parseFlags(c.Args[1:])
	switch tool {
	case "pdb2gmx":
		touch(flags["-p"], flags["-i"], flags["-o"])
	case "grompp":
		touch(flags["-o"])
	case "mdrun":
		touch(flags["-deffnm"]+".xtc", flags["-cpo"])
	case "rms":
		body := "0 0.5\n"
		if len(f.rmsd) > 0 {
			body = f.rmsd[0]
			f.rmsd = f.rmsd[1:]
		}
		if err := os.WriteFile(flags["-o"], []byte(body), 0644); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected tool %s", tool)
	}
	return &Output{}, nil
}

func (f *fakeGromacs) tools() []string {
	out := make([]string, len(f.commands))
	for i, c := range f.commands {
		out[i] = c.Args[0]
	}
	return out
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "-") {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[args[i]] = args[i+1]
			i++
		} else {
			flags[args[i]] = ""
		}
	}
	return flags
}

func touch(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.WriteFile(p, nil, 0644)
		}
	}
}
