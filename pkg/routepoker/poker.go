// Package routepoker implements RouteTracker/RoutePoker: the host-routing
// controller that keeps the kernel routing table consistent with the
// currently active exit across gateway changes and tunnel up/down
// transitions. Grounded line for line on
// llarp/router/route_poker.{hpp,cpp} from the original implementation,
// using the desired-vs-current reconciliation idiom the teacher applies in
// tunrouter.go's reconcileStaticRoutes/refreshSubnets.
package routepoker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"

	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/retry"
	"github.com/veilnet/veild/pkg/vpn"
)

type ipKey [16]byte

func keyOf(ip net.IP) ipKey {
	var k ipKey
	copy(k[:], ip.To16())
	return k
}

// Poker is RoutePoker: it tracks a desired set of host routes and keeps
// them installed under the currently-detected default gateway.
type Poker struct {
	mu sync.Mutex

	platform vpn.Platform
	ifName   string

	poked          map[ipKey]net.IP // destination -> gateway at install time
	pokedAddr      map[ipKey]net.IP // destination -> original net.IP value
	currentGateway net.IP

	enabled  bool
	enabling bool

	initialized bool
}

// New returns an un-initialized Poker; Init must be called before any
// other method.
func New() *Poker {
	return &Poker{
		poked:     make(map[ipKey]net.IP),
		pokedAddr: make(map[ipKey]net.IP),
	}
}

// Init binds the platform collaborator and tunnel interface name, sets the
// initial enabled state, and clears current_gateway (spec §4.4.1).
func (p *Poker) Init(platform vpn.Platform, ifName string, enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.platform = platform
	p.ifName = ifName
	p.enabled = false
	p.enabling = false
	p.currentGateway = nil
	p.initialized = true
	if enable {
		p.enabled = true
	}
}

func (p *Poker) requireInit() error {
	if !p.initialized {
		return errcat.NotInitialized.New("route poker used before init()")
	}
	return nil
}

// AddRoute records a desired /32 to ip. If the poker is enabled or
// enabling and a gateway has already been detected, it also installs the
// route immediately (spec §4.4.1).
func (p *Poker) AddRoute(ctx context.Context, ip net.IP) error {
	p.mu.Lock()
	if err := p.requireInit(); err != nil {
		p.mu.Unlock()
		return err
	}
	k := keyOf(ip)
	shouldInstallNow := (p.enabled || p.enabling) && p.currentGateway != nil
	gw := p.currentGateway
	p.pokedAddr[k] = ip
	if shouldInstallNow {
		p.poked[k] = gw
	} else {
		p.poked[k] = nil
	}
	platform := p.platform
	p.mu.Unlock()

	if shouldInstallNow {
		if err := platform.AddRoute(ctx, vpn.RouteInfo{Gateway: gw, Addr: ip, Netmask: hostMask(ip)}); err != nil {
			dlog.Errorf(ctx, "route poker: add route for %s failed: %v", ip, err)
		}
	}
	return nil
}

// DelRoute removes ip from the desired set. If the poker is enabled, it
// also uninstalls the kernel route (spec §4.4.1).
func (p *Poker) DelRoute(ctx context.Context, ip net.IP) error {
	p.mu.Lock()
	if err := p.requireInit(); err != nil {
		p.mu.Unlock()
		return err
	}
	k := keyOf(ip)
	gw, had := p.poked[k]
	delete(p.poked, k)
	delete(p.pokedAddr, k)
	enabled := p.enabled
	platform := p.platform
	p.mu.Unlock()

	if enabled && had && gw != nil {
		if err := platform.DelRoute(ctx, vpn.RouteInfo{Gateway: gw, Addr: ip, Netmask: hostMask(ip)}); err != nil {
			dlog.Errorf(ctx, "route poker: delete route for %s failed: %v", ip, err)
		}
	}
	return nil
}

func hostMask(ip net.IP) net.IP {
	if ip.To4() != nil {
		return net.IPv4Mask(255, 255, 255, 255)
	}
	return net.CIDRMask(128, 128)
}

// GetDefaultGateway returns the first default gateway not routed through
// the tunnel interface, or nil if the network is down (spec §4.4.2).
func (p *Poker) GetDefaultGateway(ctx context.Context) (net.IP, error) {
	p.mu.Lock()
	platform := p.platform
	ifName := p.ifName
	p.mu.Unlock()

	var gws []net.IP
	err := retry.Do(ctx, func(ctx context.Context) error {
		g, err := platform.DefaultGatewaysNotOn(ctx, ifName)
		if err != nil {
			return err
		}
		gws = g
		return nil
	}, 50*time.Millisecond, 500*time.Millisecond, 2*time.Second)
	if err != nil {
		return nil, errcat.PlatformError.Newf("default_gateways_not_on: %w", err)
	}
	if len(gws) == 0 {
		return nil, nil
	}
	return gws[0], nil
}

// Update re-discovers the default gateway and reconciles the kernel table
// (spec §4.4.3).
func (p *Poker) Update(ctx context.Context) error {
	p.mu.Lock()
	if err := p.requireInit(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	gw, err := p.GetDefaultGateway(ctx)
	if err != nil {
		dlog.Errorf(ctx, "route poker: %v", err)
		return nil
	}
	if gw == nil {
		dlog.Infof(ctx, "route poker: network down")
		return nil
	}

	p.mu.Lock()
	same := p.currentGateway != nil && p.currentGateway.Equal(gw) && !p.enabling
	skipTeardown := p.enabling
	p.mu.Unlock()

	if same {
		return nil
	}

	if !skipTeardown {
		p.disableAllRoutes(ctx)
	}

	p.mu.Lock()
	p.currentGateway = gw
	p.mu.Unlock()

	p.enableAllRoutes(ctx)

	p.mu.Lock()
	platform := p.platform
	ifName := p.ifName
	p.mu.Unlock()
	if err := platform.AddDefaultRouteVia(ctx, ifName); err != nil {
		dlog.Errorf(ctx, "route poker: add default route via %s failed: %v", ifName, err)
	}
	return nil
}

// enableAllRoutes iterates the desired set, rewrites each entry's stored
// gateway to current_gateway, and installs ip via current_gateway /32
// (spec §4.4.3).
func (p *Poker) enableAllRoutes(ctx context.Context) {
	p.mu.Lock()
	gw := p.currentGateway
	platform := p.platform
	addrs := make([]net.IP, 0, len(p.pokedAddr))
	for _, ip := range p.pokedAddr {
		addrs = append(addrs, ip)
	}
	p.mu.Unlock()

	for _, ip := range addrs {
		if err := platform.AddRoute(ctx, vpn.RouteInfo{Gateway: gw, Addr: ip, Netmask: hostMask(ip)}); err != nil {
			dlog.Errorf(ctx, "route poker: enable route for %s failed: %v", ip, err)
			continue
		}
		p.mu.Lock()
		p.poked[keyOf(ip)] = gw
		p.mu.Unlock()
	}
}

// disableAllRoutes uninstalls using each entry's stored gateway, which may
// differ from current_gateway during a transition (spec §4.4.3).
func (p *Poker) disableAllRoutes(ctx context.Context) {
	p.mu.Lock()
	platform := p.platform
	type entry struct {
		ip net.IP
		gw net.IP
	}
	var entries []entry
	for k, gw := range p.poked {
		if gw == nil {
			continue
		}
		entries = append(entries, entry{ip: p.pokedAddr[k], gw: gw})
	}
	p.mu.Unlock()

	for _, e := range entries {
		if err := platform.DelRoute(ctx, vpn.RouteInfo{Gateway: e.gw, Addr: e.ip, Netmask: hostMask(e.ip)}); err != nil {
			dlog.Errorf(ctx, "route poker: disable route for %s failed: %v", e.ip, err)
		}
	}
}

// Enable transitions disabled→enabled, installing all desired routes and
// the tunnel default route (spec §4.4.1, §4.4.4). It is idempotent.
func (p *Poker) Enable(ctx context.Context) error {
	p.mu.Lock()
	if err := p.requireInit(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.enabled {
		p.mu.Unlock()
		return nil
	}
	p.enabling = true
	p.mu.Unlock()

	if err := p.Update(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.enabling = false
	p.enabled = true
	p.mu.Unlock()
	return nil
}

// Disable transitions enabled→disabled, uninstalling all desired routes
// and the tunnel default route (spec §4.4.1). It is idempotent.
func (p *Poker) Disable(ctx context.Context) error {
	p.mu.Lock()
	if err := p.requireInit(); err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.enabled {
		p.mu.Unlock()
		return nil
	}
	ifName := p.ifName
	platform := p.platform
	p.mu.Unlock()

	p.disableAllRoutes(ctx)
	if err := platform.DelDefaultRouteVia(ctx, ifName); err != nil {
		dlog.Errorf(ctx, "route poker: delete default route via %s failed: %v", ifName, err)
	}

	p.mu.Lock()
	p.enabled = false
	p.enabling = false
	for k := range p.poked {
		p.poked[k] = nil
	}
	p.mu.Unlock()
	return nil
}

// Close uninstalls every installed route, aggregating any failures
// (spec §3 RoutePoker invariants: "on destruction, every installed kernel
// route is removed").
func (p *Poker) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil
	}
	platform := p.platform
	type entry struct {
		ip net.IP
		gw net.IP
	}
	var entries []entry
	for k, gw := range p.poked {
		if gw == nil {
			continue
		}
		entries = append(entries, entry{ip: p.pokedAddr[k], gw: gw})
	}
	ifName := p.ifName
	enabled := p.enabled
	p.mu.Unlock()

	var result *multierror.Error
	for _, e := range entries {
		if err := platform.DelRoute(ctx, vpn.RouteInfo{Gateway: e.gw, Addr: e.ip, Netmask: hostMask(e.ip)}); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if enabled {
		if err := platform.DelDefaultRouteVia(ctx, ifName); err != nil {
			result = multierror.Append(result, err)
		}
	}

	p.mu.Lock()
	p.poked = make(map[ipKey]net.IP)
	p.pokedAddr = make(map[ipKey]net.IP)
	p.enabled = false
	p.enabling = false
	p.mu.Unlock()

	return result.ErrorOrNil()
}

// Enabled reports whether the poker currently believes routes are
// installed.
func (p *Poker) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// CurrentGateway returns the last-detected default gateway, or nil.
func (p *Poker) CurrentGateway() net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentGateway == nil {
		return nil
	}
	return append(net.IP(nil), p.currentGateway...)
}
