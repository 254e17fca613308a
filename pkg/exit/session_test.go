package exit

import (
	"context"
	"testing"
	"time"

	"github.com/blang/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veild/pkg/buildinfo"
	"github.com/veilnet/veild/pkg/netpkt"
	"github.com/veilnet/veild/pkg/pathpool"
	"github.com/veilnet/veild/pkg/routing"
	"github.com/veilnet/veild/pkg/wire"
)

func newTestSession(t *testing.T, pool pathpool.Pool, written *[][]byte) *Session {
	t.Helper()
	cfg := Config{
		Kind:       SessionKind{Kind: KindExit},
		ExitRouter: wire.RouterID{1},
		Pool:       pool,
		WritePacket: func(ctx context.Context, pkt []byte) bool {
			*written = append(*written, append([]byte(nil), pkt...))
			return true
		},
	}
	return New(cfg, time.Unix(0, 0))
}

func TestReadyHookFiresOnceAndLateHookFiresImmediately(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)

	var calls []int
	s.AddReadyHook(func(*Session, bool) { calls = append(calls, 1) })
	s.AddReadyHook(func(*Session, bool) { calls = append(calls, 2) })

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, 10*time.Millisecond)
	ctx := context.Background()
	s.HandlePathBuilt(ctx, p)
	s.HandleGotExit(ctx, p, pathGotExit(true))

	assert.Equal(t, []int{1, 2}, calls)
	assert.True(t, s.IsReady())

	fired := false
	var firedOK bool
	s.AddReadyHook(func(_ *Session, ok bool) { fired = true; firedOK = ok })
	assert.True(t, fired)
	assert.True(t, firedOK)
}

func TestStopBeforeReadyFailsPendingReadyHooks(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)

	var ok1, ok2 bool
	var calls int
	s.AddReadyHook(func(_ *Session, ok bool) { calls++; ok1 = ok })
	s.AddReadyHook(func(_ *Session, ok bool) { calls++; ok2 = ok })

	s.Stop(context.Background())

	assert.Equal(t, 2, calls)
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.False(t, s.IsReady())

	// A hook registered after the session has already stopped unready
	// fires immediately with ok=false too.
	lateOK := true
	s.AddReadyHook(func(_ *Session, ok bool) { lateOK = ok })
	assert.False(t, lateOK)
}

func TestQueueUpstreamFailsAfterStop(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	ctx := context.Background()
	s.HandlePathBuilt(ctx, p)
	s.HandleGotExit(ctx, p, pathGotExit(true))

	s.Stop(ctx)

	pkt := netpkt.New(make([]byte, 20), time.Now())
	require.NotNil(t, pkt)
	ok := s.QueueUpstream(pkt, 6)
	assert.False(t, ok)
}

func TestHandlePathDiedClearsCurrentPath(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	ctx := context.Background()
	s.HandlePathBuilt(ctx, p)
	s.HandleGotExit(ctx, p, pathGotExit(true))
	require.True(t, s.IsReady())

	s.HandlePathDied(p)
	assert.False(t, s.IsReady())
	assert.True(t, s.CurrentPath().IsZero())
	assert.Equal(t, StateRebuilding, s.State())
}

func TestIsExpiredRequiresPriorReady(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)

	future := time.Now().Add(LifeSpan + time.Hour)
	assert.False(t, s.IsExpired(future))

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	ctx := context.Background()
	s.HandlePathBuilt(ctx, p)
	s.HandleGotExit(ctx, p, pathGotExit(true))

	assert.True(t, s.IsExpired(future))
}

func TestFlushDownstreamDeliversInOrder(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)
	ctx := context.Background()

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	s.HandleTraffic(ctx, p, buildV4Packet(3), 3, 6)
	s.HandleTraffic(ctx, p, buildV4Packet(1), 1, 6)
	s.HandleTraffic(ctx, p, buildV4Packet(2), 2, 6)

	require.Len(t, written, 3)
	assert.Equal(t, byte(1), written[0][19])
	assert.Equal(t, byte(2), written[1][19])
	assert.Equal(t, byte(3), written[2][19])
}

func pathGotExit(ok bool) routing.GotExit {
	return routing.GotExit{Success: ok}
}

func TestHandlePathBuiltSendsObtainExitRequest(t *testing.T) {
	pool := pathpool.NewSimulated()
	var written [][]byte
	s := newTestSession(t, pool, &written)
	identity := [32]byte{9, 9, 9}
	s.identity = identity

	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	s.HandlePathBuilt(context.Background(), p)

	sent := pool.SentMessages()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Handshake)
	assert.Equal(t, identity, sent[0].Handshake.Identity)
	assert.True(t, sent[0].Handshake.Exit)
	assert.Equal(t, buildinfo.ProtocolVersion, sent[0].Handshake.ProtocolVersion)
}

func TestHandleGotExitRejectsIncompatibleMajorVersion(t *testing.T) {
	pool := pathpool.NewSimulated()
	s := newTestSession(t, pool, nil)
	p := pool.AddPath(wire.PathID{1}, wire.RouterID{1}, time.Millisecond)
	ctx := context.Background()
	s.HandlePathBuilt(ctx, p)

	s.HandleGotExit(ctx, p, routing.GotExit{
		Success:         true,
		ProtocolVersion: semver.Version{Major: buildinfo.ProtocolVersion.Major + 1},
	})

	assert.False(t, s.IsReady())
}

func buildV4Packet(id byte) []byte {
	b := make([]byte, 20)
	b[0] = 0x45
	b[9] = 17
	b[19] = id
	return b
}
