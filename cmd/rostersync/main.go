// Command rostersync replicates an encrypted attendance roster.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rostersync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
