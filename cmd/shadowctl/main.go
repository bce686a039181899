// Command shadowctl replays shadow cycles and inspects their decisions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chainshadow/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
