package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func exitCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "exit <router-id|name.exit>",
		Short: "Map traffic through the given exit router",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := callRPC(socketPath, "exit", map[string]string{"exit": args[0]}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "control socket path (default: per-user cache dir)")
	return cmd
}

func unmapCommand() *cobra.Command {
	var socketPath string
	cmd := &cobra.Command{
		Use:   "unmap",
		Short: "Tear down the current exit session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := callRPC(socketPath, "exit", map[string]bool{"unmap": true}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "control socket path (default: per-user cache dir)")
	return cmd
}
