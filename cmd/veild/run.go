package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/veilnet/veild/internal/config"
	"github.com/veilnet/veild/internal/daemon"
	"github.com/veilnet/veild/internal/logging"
	"github.com/veilnet/veild/pkg/exit"
	"github.com/veilnet/veild/pkg/identity"
	"github.com/veilnet/veild/pkg/pathpool"
	"github.com/veilnet/veild/pkg/resolvename"
	"github.com/veilnet/veild/pkg/routepoker"
	"github.com/veilnet/veild/pkg/vpn/linuxplat"
	"github.com/veilnet/veild/pkg/wire"
)

func runCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the veild daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file")
	return cmd
}

func runDaemon(ctx context.Context, configPath string) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}

	logDir, err := config.CacheDir()
	if err != nil {
		return err
	}
	ctx, err = logging.Init(ctx, logging.Config{
		Name:       "veild",
		Dir:        logDir,
		Level:      cfg.LogLevel,
		ToTerminal: true,
	})
	if err != nil {
		return err
	}

	keyPath := cfg.IdentityKeyPath
	if keyPath == "" {
		if keyPath, err = config.DefaultIdentityKeyPath(); err != nil {
			return err
		}
	}
	key, err := identity.LoadFromFile(keyPath)
	if err != nil {
		return err
	}
	routerID, err := identity.DeriveRouterID(key[32:])
	if err != nil {
		return err
	}

	exitRouter, err := wire.RouterIDFromHex(cfg.ExitRouter)
	if err != nil {
		return err
	}

	platform := linuxplat.New()
	// pathpool.Simulated is a test double: it hands back Path handles a
	// caller controls directly rather than building onion circuits. No
	// real path-builder collaborator is implemented in this tree (spec §1
	// names it an external collaborator), so a "run" daemon using it will
	// never leave StateInit/StateBuilding on its own. Until a real builder
	// is wired in, this is a placeholder and operators should be told so.
	dlog.Warnf(ctx, "veild: no path-builder collaborator is wired in; the session will never build a real path with the built-in Simulated pool")
	pool := pathpool.NewSimulated()

	socketPath := cfg.RPCSocketPath
	if socketPath == "" {
		if socketPath, err = config.DefaultRPCSocketPath(); err != nil {
			return err
		}
	}

	session := exit.New(exit.Config{
		Kind:       exit.SessionKind{Kind: exit.KindExit},
		ExitRouter: exitRouter,
		Identity:   routerID,
		Pool:       pool,
	}, time.Now())

	poker := routepoker.New()
	d := daemon.New(daemon.Config{
		Session:       session,
		Poker:         poker,
		Platform:      platform,
		Pool:          pool,
		Resolver:      resolvename.New(cfg.DNSResolver),
		ExitRouter:    exitRouter,
		RPCSocketPath: socketPath,
		TunIfName:     cfg.TunnelIfName,
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		d.Stop(ctx)
	}()

	return d.Run(sigCtx)
}
