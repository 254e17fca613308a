// Package linuxplat implements vpn.Platform for Linux by shelling out to
// the "ip" command, the same exec.Command idiom the teacher's
// nat.iptablesRouter uses for "iptables" (pkg/client/daemon/nat/route_linux.go).
package linuxplat

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/veilnet/veild/pkg/vpn"
)

// Platform is a Linux vpn.Platform backed by the "ip" CLI.
type Platform struct{}

// New returns a Linux platform implementation.
func New() *Platform { return &Platform{} }

func (p *Platform) ip(c context.Context, args ...string) error {
	dlog.Debugf(c, "running %s", shellString("ip", args))
	out, err := exec.Command("ip", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func shellString(cmd string, args []string) string {
	var sb strings.Builder
	sb.WriteString(cmd)
	for _, a := range args {
		sb.WriteByte(' ')
		if strings.ContainsAny(a, " \t\"'") {
			sb.WriteByte('"')
			sb.WriteString(a)
			sb.WriteByte('"')
		} else {
			sb.WriteString(a)
		}
	}
	return sb.String()
}

// ObtainInterface opens the TUN device named in info and returns a
// NetworkInterface wrapping it.
func (p *Platform) ObtainInterface(ctx context.Context, info vpn.InterfaceInfo) (vpn.NetworkInterface, error) {
	return newTunDevice(ctx, info)
}

func (p *Platform) AddRoute(ctx context.Context, r vpn.RouteInfo) error {
	return p.ip(ctx, "route", "add", hostCIDR(r.Addr), "via", r.Gateway.String())
}

func (p *Platform) DelRoute(ctx context.Context, r vpn.RouteInfo) error {
	return p.ip(ctx, "route", "del", hostCIDR(r.Addr), "via", r.Gateway.String())
}

func (p *Platform) AddDefaultRouteVia(ctx context.Context, ifName string) error {
	return p.ip(ctx, "route", "replace", "default", "dev", ifName)
}

func (p *Platform) DelDefaultRouteVia(ctx context.Context, ifName string) error {
	return p.ip(ctx, "route", "del", "default", "dev", ifName)
}

func hostCIDR(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String() + "/32"
	}
	return ip.String() + "/128"
}

// DefaultGatewaysNotOn returns the system's default gateways, excluding
// any whose egress device is ifName. It parses `ip route show default`.
func (p *Platform) DefaultGatewaysNotOn(ctx context.Context, ifName string) ([]net.IP, error) {
	out, err := exec.Command("ip", "route", "show", "default").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ip route show default: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var gws []net.IP
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		var gw net.IP
		var dev string
		for i := 0; i < len(fields)-1; i++ {
			switch fields[i] {
			case "via":
				gw = net.ParseIP(fields[i+1])
			case "dev":
				dev = fields[i+1]
			}
		}
		if gw == nil || dev == ifName {
			continue
		}
		gws = append(gws, gw)
	}
	return gws, nil
}
