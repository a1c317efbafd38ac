// Command gravitytiming is the administrative CLI for the race-timing
// core: ingest, import/export, templates, recompute, backup, and
// journal inspection.
package main

import (
	"fmt"
	"os"

	"github.com/gravitytiming/core/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
