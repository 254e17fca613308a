// Package resolvename resolves a ".exit"-style name (as accepted by the
// "exit" RPC's exit field, spec §6) to a RouterID via DNS TXT lookup,
// mirroring the lns_exit name-lookup branch of llarp/rpc/rpc_server.cpp.
// Raw hex RouterID addresses bypass this package entirely; callers should
// try wire.RouterIDFromHex first and only fall back to Resolve for names.
package resolvename

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/veilnet/veild/pkg/retry"
	"github.com/veilnet/veild/pkg/wire"
)

// ErrNameNotFound is returned when the resolver has no TXT record for the
// requested name, matching the original's "we could not find an exit with
// that name" RPC error.
var ErrNameNotFound = errors.New("we could not find an exit with that name")

// Resolver looks up RouterIDs by DNS name.
type Resolver struct {
	server string // host:port of the resolver to query
	client *dns.Client
}

// New returns a Resolver that queries server (e.g. "127.0.0.1:53").
func New(server string) *Resolver {
	return &Resolver{server: server, client: &dns.Client{}}
}

// Resolve queries a TXT record for name and parses its content as a
// hex-encoded RouterID.
func (r *Resolver) Resolve(ctx context.Context, name string) (wire.RouterID, error) {
	var zero wire.RouterID
	fqdn := dns.Fqdn(name)

	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeTXT)
	m.RecursionDesired = true

	var in *dns.Msg
	queryErr := retry.Do(ctx, func(ctx context.Context) error {
		resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			return err
		}
		in = resp
		return nil
	}, 100*time.Millisecond, 500*time.Millisecond, 2*time.Second)
	if queryErr != nil {
		return zero, fmt.Errorf("resolvename: query %s: %w", name, queryErr)
	}
	if in.Rcode != dns.RcodeSuccess {
		return zero, ErrNameNotFound
	}
	for _, a := range in.Answer {
		txt, ok := a.(*dns.TXT)
		if !ok {
			continue
		}
		hexID := strings.Join(txt.Txt, "")
		rid, err := wire.RouterIDFromHex(hexID)
		if err != nil {
			continue
		}
		return rid, nil
	}
	return zero, ErrNameNotFound
}

// IsExitName reports whether s looks like a ".exit" name rather than a raw
// hex RouterID.
func IsExitName(s string) bool {
	return strings.HasSuffix(s, ".exit")
}
