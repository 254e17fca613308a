package routepoker

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/vpn"
)

type routeCall struct {
	op string // "add" or "del"
	r  vpn.RouteInfo
}

type fakePlatform struct {
	gateways     []net.IP
	calls        []routeCall
	defaultAdded int
	defaultDeled int
}

func (f *fakePlatform) ObtainInterface(ctx context.Context, info vpn.InterfaceInfo) (vpn.NetworkInterface, error) {
	return nil, nil
}

func (f *fakePlatform) AddRoute(ctx context.Context, r vpn.RouteInfo) error {
	f.calls = append(f.calls, routeCall{op: "add", r: r})
	return nil
}

func (f *fakePlatform) DelRoute(ctx context.Context, r vpn.RouteInfo) error {
	f.calls = append(f.calls, routeCall{op: "del", r: r})
	return nil
}

func (f *fakePlatform) AddDefaultRouteVia(ctx context.Context, ifName string) error {
	f.defaultAdded++
	return nil
}

func (f *fakePlatform) DelDefaultRouteVia(ctx context.Context, ifName string) error {
	f.defaultDeled++
	return nil
}

func (f *fakePlatform) DefaultGatewaysNotOn(ctx context.Context, ifName string) ([]net.IP, error) {
	return f.gateways, nil
}

func TestNotInitializedBeforeInit(t *testing.T) {
	p := New()
	err := p.AddRoute(context.Background(), net.ParseIP("1.2.3.4"))
	assert.Equal(t, errcat.NotInitialized, errcat.GetCategory(err))
}

func TestGatewayChangeReconciliation(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlatform{gateways: []net.IP{net.ParseIP("10.0.0.1")}}
	p := New()
	p.Init(fp, "tun0", false)

	require.NoError(t, p.AddRoute(ctx, net.ParseIP("1.2.3.4")))
	require.NoError(t, p.Enable(ctx))

	require.Len(t, fp.calls, 1)
	assert.Equal(t, "add", fp.calls[0].op)
	assert.True(t, fp.calls[0].r.Gateway.Equal(net.ParseIP("10.0.0.1")))
	assert.Equal(t, 1, fp.defaultAdded)

	fp.gateways = []net.IP{net.ParseIP("10.0.0.2")}
	fp.calls = nil
	require.NoError(t, p.Update(ctx))

	require.Len(t, fp.calls, 2)
	assert.Equal(t, "del", fp.calls[0].op)
	assert.True(t, fp.calls[0].r.Gateway.Equal(net.ParseIP("10.0.0.1")))
	assert.Equal(t, "add", fp.calls[1].op)
	assert.True(t, fp.calls[1].r.Gateway.Equal(net.ParseIP("10.0.0.2")))
	assert.Equal(t, 2, fp.defaultAdded)
}

func TestNetworkDownIsNoop(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlatform{gateways: nil}
	p := New()
	p.Init(fp, "tun0", false)
	require.NoError(t, p.AddRoute(ctx, net.ParseIP("1.2.3.4")))
	fp.calls = nil

	require.NoError(t, p.Update(ctx))
	assert.Empty(t, fp.calls)
	assert.Nil(t, p.CurrentGateway())
}

func TestEnableDisableIdempotent(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlatform{gateways: []net.IP{net.ParseIP("10.0.0.1")}}
	p := New()
	p.Init(fp, "tun0", false)
	require.NoError(t, p.AddRoute(ctx, net.ParseIP("1.2.3.4")))

	require.NoError(t, p.Enable(ctx))
	require.NoError(t, p.Enable(ctx))
	assert.Equal(t, 1, fp.defaultAdded)

	require.NoError(t, p.Disable(ctx))
	require.NoError(t, p.Disable(ctx))
	assert.Equal(t, 1, fp.defaultDeled)
}

func TestAddDelRouteLeavesNoKernelRoute(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlatform{gateways: []net.IP{net.ParseIP("10.0.0.1")}}
	p := New()
	p.Init(fp, "tun0", false)
	require.NoError(t, p.Enable(ctx))

	ip := net.ParseIP("1.2.3.4")
	require.NoError(t, p.AddRoute(ctx, ip))
	require.NoError(t, p.DelRoute(ctx, ip))
	fp.calls = nil

	require.NoError(t, p.Update(ctx))
	assert.Empty(t, fp.calls)
}

func TestCloseRemovesAllRoutes(t *testing.T) {
	ctx := context.Background()
	fp := &fakePlatform{gateways: []net.IP{net.ParseIP("10.0.0.1")}}
	p := New()
	p.Init(fp, "tun0", false)
	require.NoError(t, p.AddRoute(ctx, net.ParseIP("1.2.3.4")))
	require.NoError(t, p.Enable(ctx))
	fp.calls = nil

	require.NoError(t, p.Close(ctx))
	require.Len(t, fp.calls, 1)
	assert.Equal(t, "del", fp.calls[0].op)
}
