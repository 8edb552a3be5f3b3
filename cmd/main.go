// tm is the CLI for taskmaster-lite, which keeps PRD documents and the
// task list consistent.
package main

import (
	"fmt"
	"os"

	"taskmaster-lite/internal/cmd"
)

var (
	run    = func() error { return cmd.Execute() }
	osExit = os.Exit
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}
