// Package leakguard implements a VPN kill-switch: between Enable and
// Disable, egress traffic that does not go out the tunnel interface (or
// loopback) is dropped. Guard is not tied to the route poker; nothing in
// the daemon calls Enable or Disable, and config.Config.LeakGuard is not
// read. Grounded on the chain-lifecycle idiom of the
// teacher's nat package (pkg/client/daemon/nat/route_linux.go's
// Enable/Disable/Flush), generalized from NAT redirection to DROP rules
// and built on github.com/coreos/go-iptables, a teacher dependency with
// no other SPEC_FULL.md component to attach to.
package leakguard

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
)

const chainName = "VEILD_LEAKGUARD"

// Guard manages a dedicated iptables chain that drops all output traffic
// except what leaves via the tunnel interface or targets the loopback.
type Guard struct {
	ipt    *iptables.IPTables
	ifName string
}

// New returns a Guard bound to ifName, the tunnel device name.
func New(ifName string) (*Guard, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("leakguard: init iptables: %w", err)
	}
	return &Guard{ipt: ipt, ifName: ifName}, nil
}

// Enable installs the kill-switch chain and hooks it into OUTPUT.
func (g *Guard) Enable() error {
	if err := g.ipt.ClearChain("filter", chainName); err != nil {
		return fmt.Errorf("leakguard: clear chain: %w", err)
	}
	rules := [][]string{
		{"-o", "lo", "-j", "RETURN"},
		{"-o", g.ifName, "-j", "RETURN"},
		{"-j", "DROP"},
	}
	for _, r := range rules {
		if err := g.ipt.AppendUnique("filter", chainName, r...); err != nil {
			return fmt.Errorf("leakguard: append rule %v: %w", r, err)
		}
	}
	if err := g.ipt.InsertUnique("filter", "OUTPUT", 1, "-j", chainName); err != nil {
		return fmt.Errorf("leakguard: hook OUTPUT: %w", err)
	}
	return nil
}

// Disable unhooks and flushes the kill-switch chain.
func (g *Guard) Disable() error {
	_ = g.ipt.Delete("filter", "OUTPUT", "-j", chainName)
	if err := g.ipt.ClearChain("filter", chainName); err != nil {
		return fmt.Errorf("leakguard: clear chain: %w", err)
	}
	if err := g.ipt.DeleteChain("filter", chainName); err != nil {
		return fmt.Errorf("leakguard: delete chain: %w", err)
	}
	return nil
}
