package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilnet/veild/pkg/buildinfo"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the veild version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "veild %s (protocol %s)\n", buildinfo.Version, buildinfo.ProtocolVersion)
			return nil
		},
	}
}
