package shell

import (
	"bytes"
	"os"
	"strings"

	"k8s.io/klog"
)

type Shell struct {
	Exec Exec
}

func New() *Shell {
	return &Shell{Exec: DefaultExec}
}

// Wait runs the command and waits until it returns
func (s *Shell) Wait(cmd *Command) Result {
	return s.Exec(cmd)
}

// Interact runs the command interactively, inheriting os.(Stdin|Stdout|Stderr) to the command
func (s *Shell) Interact(cmd *Command) Result {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return s.Exec(cmd)
}

type CaptureResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Capture runs the command to completion with stdout and stderr buffered,
// so that callers branch on the explicit result rather than on any ambient
// process state.
func (s *Shell) Capture(cmd *Command) (*CaptureResult, error) {
	klog.V(1).Infof("running %s %s", cmd.Name, strings.Join(cmd.Args, " "))

	var stdout, stderr bytes.Buffer
	if cmd.Stdout == nil {
		cmd.Stdout = &stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}

	r := s.Exec(cmd)
	res := &CaptureResult{
		ExitStatus: r.ExitStatus,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	if r.Error != nil {
		klog.V(1).Info(res.Stderr)
	}
	return res, r.Error
}

// CaptureStrings is the two-valued convenience over Capture for callers
// that only need stdout and stderr
func (s *Shell) CaptureStrings(name string, args []string) (string, string, error) {
	res, err := s.Capture(&Command{Name: name, Args: args})
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}
