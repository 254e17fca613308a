// Command veild is the anonymizing overlay network client/router daemon.
// It wraps the core (pkg/exit, pkg/routepoker, internal/daemon) in a cobra
// CLI the way the teacher's cmd/telepresence/main.go wraps its connector
// and daemon packages: a "run" subcommand starts the foreground process,
// everything else is a thin client against the control RPC socket.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()
	cmd := rootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %v\n", cmd.CommandPath(), err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "veild",
		Short:         "Anonymizing overlay network client/router daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		runCommand(),
		versionCommand(),
		statusCommand(),
		exitCommand(),
		unmapCommand(),
	)
	return cmd
}
