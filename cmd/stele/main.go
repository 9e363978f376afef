package main

import (
	"fmt"
	"os"

	"github.com/stele-ml/stele/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Subcommands silence cobra's own error printing, so the
		// boundary owns the single stderr line and the process code.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
