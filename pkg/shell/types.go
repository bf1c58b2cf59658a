package shell

import (
	"io"
)

// Command is one external tool invocation: git, the python interpreter, or
// the packager. Env entries are overlaid on the inherited environment.
type Command struct {
	Name           string
	Args           []string
	Stdout, Stderr io.Writer
	Stdin          io.Reader
	Env            map[string]string

	// Dir is the working directory of this command. The pipeline always
	// sets it to the project root, never relying on the process cwd.
	Dir string
}

// Exec runs a command to completion. DefaultExec backs it with os/exec;
// tests swap in a map-keyed fake.
type Exec func(*Command) Result

type Result struct {
	ExitStatus int

	// Error is the raw execution error, also set on non-zero exits
	Error error
}
