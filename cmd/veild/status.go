package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veilnet/veild/pkg/exit"
)

func statusCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current exit session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := callRPC(socketPath, "status", nil)
			if err != nil {
				return err
			}
			var st exit.Status
			if err := json.Unmarshal(raw, &st); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "instance:   %s\n", st.InstanceID)
			fmt.Fprintf(cmd.OutOrStdout(), "state:      %s\n", st.State)
			fmt.Fprintf(cmd.OutOrStdout(), "exit:       %s\n", st.ExitRouter)
			fmt.Fprintf(cmd.OutOrStdout(), "path:       %s\n", st.CurrentPath)
			fmt.Fprintf(cmd.OutOrStdout(), "upstream:   %d queued\n", st.UpstreamLen)
			fmt.Fprintf(cmd.OutOrStdout(), "downstream: %d queued\n", st.DownstreamLen)
			fmt.Fprintf(cmd.OutOrStdout(), "dropped:    %d\n", st.DroppedCount)
			fmt.Fprintf(cmd.OutOrStdout(), "rtt:        %s\n", st.EstimatedRTT)
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "control socket path (default: per-user cache dir)")
	return cmd
}
