// Package daemon wires ExitSession, RoutePoker, and the platform/tunnel
// collaborators into the single cooperative event loop described in spec
// §5. Grounded on the teacher's tunRouter (pkg/client/daemon/tunrouter.go):
// dgroup-supervised goroutines, an atomic tri-state shutdown flag, and a
// periodic reconciliation tick.
package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dtime"

	"github.com/veilnet/veild/internal/rpcserver"
	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/exit"
	"github.com/veilnet/veild/pkg/netpkt"
	"github.com/veilnet/veild/pkg/pathpool"
	"github.com/veilnet/veild/pkg/resolvename"
	"github.com/veilnet/veild/pkg/routepoker"
	"github.com/veilnet/veild/pkg/vpn"
	"github.com/veilnet/veild/pkg/wire"
)

// Shutdown lifecycle states, matching tunRouter.closing's tri-state idiom.
const (
	closingNone int32 = iota
	closingPending
	closingDone
)

// Daemon ties together one ExitSession, its RoutePoker, and the platform
// collaborator that backs both.
type Daemon struct {
	session  *exit.Session
	poker    *routepoker.Poker
	platform vpn.Platform
	tunDev   vpn.NetworkInterface
	pool     pathpool.Pool
	resolver *resolvename.Resolver

	rpcSocketPath string
	tunIfName     string
	exitRouter    wire.RouterID

	closing int32
}

// Config configures a Daemon.
type Config struct {
	Session       *exit.Session
	Poker         *routepoker.Poker
	Platform      vpn.Platform
	Pool          pathpool.Pool
	Resolver      *resolvename.Resolver
	RPCSocketPath string
	TunIfName     string
	// ExitRouter is the RouterID the Session was actually built against;
	// MapExit uses it to check that an "exit" RPC request resolves to the
	// same router (spec §6).
	ExitRouter wire.RouterID
}

// New returns a Daemon ready to Run.
func New(cfg Config) *Daemon {
	return &Daemon{
		session:       cfg.Session,
		poker:         cfg.Poker,
		platform:      cfg.Platform,
		pool:          cfg.Pool,
		resolver:      cfg.Resolver,
		rpcSocketPath: cfg.RPCSocketPath,
		tunIfName:     cfg.TunIfName,
		exitRouter:    cfg.ExitRouter,
	}
}

// Run obtains the tunnel interface and runs the TUN reader, the
// flush/reconciliation tickers, and the RPC listener until ctx is
// cancelled or Stop is called.
func (d *Daemon) Run(ctx context.Context) error {
	tun, err := d.platform.ObtainInterface(ctx, vpn.InterfaceInfo{IfName: d.tunIfName})
	if err != nil {
		return err
	}
	d.tunDev = tun
	d.session.SetWritePacket(func(ctx context.Context, pkt []byte) bool {
		ok, err := d.tunDev.WritePacket(ctx, pkt)
		return ok && err == nil
	})
	d.poker.Init(d.platform, d.tunIfName, false)

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{})

	g.Go("tun-reader", d.runTunReader)
	g.Go("flush-ticker", d.runFlushTicker)
	g.Go("route-poker-ticker", d.runRoutePokerTicker)
	g.Go("rpc", func(ctx context.Context) error {
		srv := rpcserver.New(d.rpcSocketPath, d)
		return srv.Run(ctx)
	})

	return g.Wait()
}

// Stop cooperatively shuts the daemon down: the session dispatches a
// close-exit frame and the route poker tears down its kernel routes.
func (d *Daemon) Stop(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&d.closing, closingNone, closingPending) {
		return
	}
	defer atomic.StoreInt32(&d.closing, closingDone)

	d.session.Stop(ctx)
	if err := d.poker.Close(ctx); err != nil {
		dlog.Errorf(ctx, "daemon: route poker close: %v", err)
	}
}

func (d *Daemon) isClosing() bool {
	return atomic.LoadInt32(&d.closing) != closingNone
}

func (d *Daemon) runTunReader(ctx context.Context) error {
	for {
		if d.isClosing() {
			return nil
		}
		buf, err := d.tunDev.ReadNextPacket(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			dlog.Errorf(ctx, "daemon: tun read: %v", err)
			continue
		}
		pkt := netpkt.New(buf, time.Now())
		if pkt == nil {
			continue
		}
		if !d.session.QueueUpstream(pkt, pkt.Protocol()) {
			dlog.Debugf(ctx, "daemon: upstream queue full or session not ready, dropping packet")
		}
	}
}

func (d *Daemon) runFlushTicker(ctx context.Context) error {
	const period = 50 * time.Millisecond
	for {
		dtime.SleepWithContext(ctx, period)
		if ctx.Err() != nil {
			return nil
		}
		if d.isClosing() {
			return nil
		}
		if err := d.session.FlushUpstream(ctx); err != nil {
			dlog.Debugf(ctx, "daemon: flush upstream: %v", err)
		}
		d.session.FlushDownstream(ctx)
		if d.session.IsExpired(time.Now()) {
			d.session.Stop(ctx)
		}
	}
}

func (d *Daemon) runRoutePokerTicker(ctx context.Context) error {
	const period = 5 * time.Second
	for {
		dtime.SleepWithContext(ctx, period)
		if ctx.Err() != nil {
			return nil
		}
		if d.isClosing() {
			return nil
		}
		ready := d.session.IsReady()
		if ready && !d.poker.Enabled() {
			if err := d.poker.Enable(ctx); err != nil {
				dlog.Errorf(ctx, "daemon: route poker enable: %v", err)
			}
			continue
		}
		if !ready && d.poker.Enabled() {
			if err := d.poker.Disable(ctx); err != nil {
				dlog.Errorf(ctx, "daemon: route poker disable: %v", err)
			}
			continue
		}
		if ready {
			if err := d.poker.Update(ctx); err != nil {
				dlog.Errorf(ctx, "daemon: route poker update: %v", err)
			}
		}
	}
}

// MapExit implements rpcserver.Controller. The requested exit (a raw hex
// RouterID or a ".exit" DNS name, spec §6) is resolved and must match the
// router the session was actually built against; retargeting the running
// session to a different exit router is out of this core's scope (the
// collaborator framework owns path selection). Once validated, MapExit
// waits for the current session to become ready.
func (d *Daemon) MapExit(ctx context.Context, req rpcserver.ExitRequest) error {
	target, err := d.resolveExitTarget(ctx, req.Exit)
	if err != nil {
		return err
	}
	if !target.IsZero() && target != d.exitRouter {
		return errcat.NoPath.New("could not find exit")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !d.session.IsReady() {
		if time.Now().After(deadline) {
			return errcat.NoPath.New("no path became ready before timeout")
		}
		dtime.SleepWithContext(ctx, 100*time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// resolveExitTarget resolves an "exit" RPC request's exit field to a
// RouterID: a ".exit" DNS name is looked up via the configured resolver
// (mirroring llarp/rpc/rpc_server.cpp's lns_exit branch), anything else is
// parsed as a raw hex RouterID. An empty exit returns the zero RouterID,
// which MapExit treats as "no specific target requested".
func (d *Daemon) resolveExitTarget(ctx context.Context, exitAddr string) (wire.RouterID, error) {
	if exitAddr == "" {
		return wire.ZeroRouterID, nil
	}
	if resolvename.IsExitName(exitAddr) {
		if d.resolver == nil {
			return wire.RouterID{}, errcat.NoPath.New("could not find exit")
		}
		return d.resolver.Resolve(ctx, exitAddr)
	}
	return wire.RouterIDFromHex(exitAddr)
}

// UnmapExit implements rpcserver.Controller.
func (d *Daemon) UnmapExit(ctx context.Context, req rpcserver.ExitRequest) error {
	d.session.Stop(ctx)
	return nil
}

// Status implements rpcserver.Controller.
func (d *Daemon) Status(ctx context.Context) exit.Status {
	return d.session.ExtractStatus()
}
