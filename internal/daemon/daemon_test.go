package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veild/internal/rpcserver"
	"github.com/veilnet/veild/pkg/exit"
	"github.com/veilnet/veild/pkg/pathpool"
	"github.com/veilnet/veild/pkg/routing"
	"github.com/veilnet/veild/pkg/wire"
)

var testExitRouter = wire.RouterID{1}

func newTestDaemon(t *testing.T) (*Daemon, *exit.Session, *pathpool.Simulated) {
	t.Helper()
	pool := pathpool.NewSimulated()
	session := exit.New(exit.Config{
		Kind:       exit.SessionKind{Kind: exit.KindExit},
		ExitRouter: testExitRouter,
		Pool:       pool,
	}, time.Now())
	d := New(Config{Session: session, Pool: pool, ExitRouter: testExitRouter})
	return d, session, pool
}

func TestMapExitTimesOutWhenNeverReady(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := d.MapExit(ctx, rpcserver.ExitRequest{Exit: testExitRouter.String()})
	require.Error(t, err)
}

func TestMapExitReturnsOnceSessionReady(t *testing.T) {
	d, session, pool := newTestDaemon(t)
	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	session.HandlePathBuilt(context.Background(), p)
	session.HandleGotExit(context.Background(), p, routing.GotExit{Success: true})

	err := d.MapExit(context.Background(), rpcserver.ExitRequest{Exit: testExitRouter.String()})
	assert.NoError(t, err)
}

func TestMapExitRejectsMismatchedExitRouter(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	other := wire.RouterID{2}.String()
	err := d.MapExit(context.Background(), rpcserver.ExitRequest{Exit: other})
	require.Error(t, err)
}

func TestMapExitRejectsUnresolvableName(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	err := d.MapExit(context.Background(), rpcserver.ExitRequest{Exit: "foo.exit"})
	require.Error(t, err)
}

func TestStatusReflectsSessionState(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	st := d.Status(context.Background())
	assert.Equal(t, "INIT", st.State)
}

func TestUnmapExitStopsSession(t *testing.T) {
	d, session, _ := newTestDaemon(t)
	require.NoError(t, d.UnmapExit(context.Background(), rpcserver.ExitRequest{Unmap: true}))
	assert.Equal(t, exit.StateStopped, session.State())
}
