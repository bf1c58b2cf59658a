package shell

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func DefaultExec(c *Command) Result {
	cmd := exec.Command(c.Name, c.Args...)
	if len(c.Env) > 0 {
		// Entries in c.Env override the inherited environment rather than
		// replacing it, so that PATH survives
		env := os.Environ()
		for n, v := range c.Env {
			env = append(env, fmt.Sprintf("%s=%s", n, v))
		}
		cmd.Env = env
	}
	cmd.Dir = c.Dir
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	}
	if err := cmd.Start(); err != nil {
		return Result{ExitStatus: 1, Error: err}
	}
	if err := cmd.Wait(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			waitStatus := exitError.Sys().(syscall.WaitStatus)
			return Result{ExitStatus: waitStatus.ExitStatus(), Error: exitError}
		} else {
			return Result{ExitStatus: 1, Error: err}
		}
	}
	waitStatus := cmd.ProcessState.Sys().(syscall.WaitStatus)
	return Result{ExitStatus: waitStatus.ExitStatus(), Error: nil}
}
