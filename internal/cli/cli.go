// Package cli is the cobra entry point: a Run() trampoline over the
// commands package that wires flags and subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/kaelin-dev/subtrans/internal/cli/commands"
)

func Run() {
	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "subtrans: %v\n", err)
		os.Exit(1)
	}
}
