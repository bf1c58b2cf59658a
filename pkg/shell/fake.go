package shell

import (
	"fmt"
	"io"
	"strings"
)

type FakeInput struct {
	Name string
	Args string
	Env  string
}

type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

func NewFakeInput(name string, args []string, env map[string]string) FakeInput {
	envs := []string{}
	for k, v := range env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	input := FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
		Env:  strings.Join(envs, ","),
	}
	return input
}

// NewFake returns an Exec that serves canned outputs keyed by command name,
// args, and env. Any unplanned invocation fails the command, so tests fail
// loudly instead of silently running real tools.
func NewFake(expectations map[FakeInput]FakeOutput) Exec {
	return func(cmd *Command) Result {
		input := NewFakeInput(cmd.Name, cmd.Args, cmd.Env)
		output, ok := expectations[input]
		if !ok {
			err := fmt.Errorf("unexpected input: %v", input)
			return Result{ExitStatus: 1, Error: err}
		}

		if cmd.Stdout != nil {
			if _, err := io.WriteString(cmd.Stdout, output.Stdout); err != nil {
				return Result{ExitStatus: 1, Error: err}
			}
		}

		if cmd.Stderr != nil {
			if _, err := io.WriteString(cmd.Stderr, output.Stderr); err != nil {
				return Result{ExitStatus: 1, Error: err}
			}
		}

		if output.ExitStatus != 0 {
			err := fmt.Errorf("%s exited with status %d", cmd.Name, output.ExitStatus)
			return Result{ExitStatus: output.ExitStatus, Error: err}
		}

		return Result{ExitStatus: 0, Error: nil}
	}
}
