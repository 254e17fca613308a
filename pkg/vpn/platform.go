// Package vpn defines the narrow capability surface the core consumes from
// its host-platform collaborator: route manipulation and tunnel-device
// I/O. Grounded on llarp/ev/vpn.hpp's Platform and NetworkInterface
// abstractions, and on the teacher's nat.FirewallRouter interface
// (pkg/client/daemon/nat/route.go) for the Go rendition's shape.
package vpn

import (
	"context"
	"net"
)

// RouteInfo describes a host route: destination address, gateway, and
// netmask. It is parameterized over IPv4 or IPv6 by using net.IP of the
// appropriate family; callers are responsible for keeping the family
// consistent across the three fields.
type RouteInfo struct {
	Gateway net.IP
	Addr    net.IP
	Netmask net.IP
}

// IsV4 reports whether this RouteInfo describes an IPv4 route.
func (r RouteInfo) IsV4() bool { return r.Addr.To4() != nil }

// InterfaceAddress pairs a CIDR range with its address family.
type InterfaceAddress struct {
	Net    net.IPNet
	Family int // 4 or 6
}

// InterfaceInfo describes the tunnel device as obtained from the platform.
type InterfaceInfo struct {
	IfName  string
	DNSAddr net.IP
	Addrs   []InterfaceAddress
}

// NetworkInterface is the tunnel device collaborator: the core reads and
// writes IP packets through it and never touches a file descriptor
// directly.
type NetworkInterface interface {
	// PollFD returns a file descriptor suitable for readiness polling, or
	// -1 if the implementation has no such concept.
	PollFD() int
	IfName() string
	Info() InterfaceInfo
	HasNextPacket() bool
	ReadNextPacket(ctx context.Context) ([]byte, error)
	WritePacket(ctx context.Context, pkt []byte) (bool, error)
}

// Platform is the host-routing collaborator consumed by RoutePoker.
// Grounded on llarp/ev/vpn.hpp's Platform class.
type Platform interface {
	ObtainInterface(ctx context.Context, info InterfaceInfo) (NetworkInterface, error)
	AddRoute(ctx context.Context, r RouteInfo) error
	DelRoute(ctx context.Context, r RouteInfo) error
	AddDefaultRouteVia(ctx context.Context, ifName string) error
	DelDefaultRouteVia(ctx context.Context, ifName string) error
	// DefaultGatewaysNotOn returns the system's default gateways,
	// excluding any route whose egress interface is ifName.
	DefaultGatewaysNotOn(ctx context.Context, ifName string) ([]net.IP, error)
}
