// Command modelgatectl is the operator CLI for a running modelgated
// daemon: list/load/unload resident models, inspect GPU memory, and
// check task-queue depth over the daemon's HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/modelgate/modelgate/cmd/modelgatectl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
