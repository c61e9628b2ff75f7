// Command nanoclaw is the orchestrator's entrypoint: it wires the store,
// the in-process bus, every enabled chat channel, the group queue, the
// task scheduler, and the IPC watcher/dispatcher together and runs them
// until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "nanoclaw",
		Short: "Runs and manages the nanoclaw sandboxed-agent orchestrator",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(onboardCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
