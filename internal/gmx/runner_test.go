package gmx

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestExecRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	out, err := ExecRunner{}.Run(context.Background(), Command{
		Path:  sh,
		Args:  []string{"-c", "cat"},
		Stdin: "Backbone Backbone\n",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Stdout != "Backbone Backbone\n" {
		t.Errorf("stdin not forwarded, got %q", out.Stdout)
	}

	_, err = ExecRunner{}.Run(context.Background(), Command{
		Path: sh,
		Args: []string{"-c", "echo 'Fatal error: bad input' >&2; exit 3"},
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", cmdErr.ExitCode)
	}
	if !strings.Contains(err.Error(), "Fatal error: bad input") {
		t.Errorf("stderr tail missing from %q", err.Error())
	}
}
