package main

import (
	"github.com/posprint/relkit/cmd"
)

func main() {
	cmd.Execute()
}
