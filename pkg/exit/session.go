// Package exit implements ExitSession: the client-side state machine that
// builds and maintains a pool of onion paths toward a designated exit
// router, admits user IP packets upstream, orders and releases them
// downstream, and enforces the queueing/backpressure/expiry invariants of
// the core (spec §4.3). Grounded on BaseSession/ExitSession/SNodeSession
// in the original's llarp/exit/session.hpp, with the event-loop and
// logging idioms of the teacher's rootd/tunrouter.go and rootd/router.go.
package exit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/veilnet/veild/pkg/buildinfo"
	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/netpkt"
	"github.com/veilnet/veild/pkg/pathpool"
	"github.com/veilnet/veild/pkg/queue"
	"github.com/veilnet/veild/pkg/routing"
	"github.com/veilnet/veild/pkg/wire"
)

// State is a session lifecycle state (spec §4.3.7).
type State int

const (
	StateInit State = iota
	StateBuilding
	StateReady
	StateRebuilding
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateBuilding:
		return "BUILDING"
	case StateReady:
		return "READY"
	case StateRebuilding:
		return "REBUILDING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes an exit-mode session from a direct-to-snode session
// (spec §9 design note: a tagged variant rather than a class hierarchy).
type Kind int

const (
	KindExit Kind = iota
	KindSNode
)

// SessionKind tags a session with its role. UseRouterKey is carried for
// KindSNode sessions, but no code reads it: the handshake always sends
// Config.Identity, whatever the kind.
type SessionKind struct {
	Kind          Kind
	UseRouterKey  bool
}

// ExitFlag returns the E bit sent in ObtainExit: true for exit-mode
// sessions, false for snode sessions (spec §4.3.3).
func (k SessionKind) ExitFlag() bool { return k.Kind == KindExit }

// ReadyHook is invoked exactly once, in registration order: with ok=true on
// the first transition to ready (or immediately, synchronously, if
// registered after the session is already ready), or with ok=false if the
// session is stopped before ever becoming ready (spec §5, §7: "ready-hooks
// invoked with failure").
type ReadyHook func(s *Session, ok bool)

// WritePacketFunc delivers a downstream packet to the tunnel. It returns
// false if delivery failed (e.g. the tunnel device is closed).
type WritePacketFunc func(ctx context.Context, pkt []byte) bool

// LifeSpan is the default path lifetime used for session expiry (spec §3:
// "LifeSpan equals the default path lifetime, ≈10 minutes").
const LifeSpan = 10 * time.Minute

// HandshakeTimeout is the deadline HandlePathBuilt records for the pending
// path's GotExit reply. Nothing in this package checks that deadline: a
// path that never answers stays pending and the session is not stopped.
const HandshakeTimeout = 5 * time.Second

// Config configures a new Session.
type Config struct {
	Kind       SessionKind
	ExitRouter wire.RouterID
	Identity   [32]byte
	WritePacket WritePacketFunc
	Pool       pathpool.Pool
	BundleRC   bool
	LifeSpan   time.Duration
}

// Session is ExitSession/SNodeSession collapsed into one implementation
// parameterized by SessionKind (spec §9).
type Session struct {
	mu sync.Mutex

	kind        SessionKind
	exitRouter  wire.RouterID
	identity    [32]byte
	writePacket WritePacketFunc
	pool        pathpool.Pool
	bundleRC    bool
	lifeSpan    time.Duration

	state State

	upstream   *queue.Upstream
	downstream *queue.Downstream

	currentPath    wire.PathID
	currentPathObj pathpool.Path
	pendingPath    pathpool.Path
	handshakeUntil time.Time

	blacklist map[wire.RouterID]struct{}

	counter    uint64
	lastUse    time.Time
	everReady  bool

	readyHooks []ReadyHook

	dropCount uint64
	rms       float64
	flushN    uint64
	estRTT    time.Duration

	instanceID uuid.UUID
}

// New creates a session in state INIT. now is used to seed last_use so an
// idle session that never queues traffic is not immediately expired.
func New(cfg Config, now time.Time) *Session {
	lifeSpan := cfg.LifeSpan
	if lifeSpan <= 0 {
		lifeSpan = LifeSpan
	}
	return &Session{
		kind:        cfg.Kind,
		exitRouter:  cfg.ExitRouter,
		identity:    cfg.Identity,
		writePacket: cfg.WritePacket,
		pool:        cfg.Pool,
		bundleRC:    cfg.BundleRC,
		lifeSpan:    lifeSpan,
		state:       StateInit,
		upstream:    queue.NewUpstream(),
		downstream:  queue.NewDownstream(1),
		blacklist:   make(map[wire.RouterID]struct{}),
		lastUse:     now,
		instanceID:  uuid.New(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentPath returns the PathID of the session's active path, or the zero
// PathID if none.
func (s *Session) CurrentPath() wire.PathID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// DroppedCount returns the number of downstream traffic-drop events
// reported against this session so far.
func (s *Session) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropCount
}

// IsReady reports whether the session has a built path AND the handshake
// has been acknowledged (spec §4.3.1).
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady && !s.currentPath.IsZero()
}

// IsExpired reports whether the session has been idle longer than
// LifeSpan. A session whose first ready-hook has not yet fired is never
// considered expired, regardless of last_use age (spec §9 open question (a)).
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.everReady {
		return false
	}
	return now.Sub(s.lastUse) > s.lifeSpan
}

// AddReadyHook registers fn to run on the first ready transition, or
// immediately if the session is already ready. A hook registered after the
// session has already stopped without ever becoming ready fires
// immediately with ok=false.
func (s *Session) AddReadyHook(fn ReadyHook) {
	s.mu.Lock()
	if s.everReady {
		s.mu.Unlock()
		fn(s, true)
		return
	}
	if s.state == StateStopped {
		s.mu.Unlock()
		fn(s, false)
		return
	}
	s.readyHooks = append(s.readyHooks, fn)
	s.mu.Unlock()
}

// SetWritePacket (re)binds the downstream packet sink. The tunnel device
// backing it is typically not available until after the session is
// constructed (the platform's ObtainInterface call happens during daemon
// startup), so callers bind it once that completes.
func (s *Session) SetWritePacket(fn WritePacketFunc) {
	s.mu.Lock()
	s.writePacket = fn
	s.mu.Unlock()
}

// BlacklistSNode excludes rid from future path builds.
func (s *Session) BlacklistSNode(rid wire.RouterID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[rid] = struct{}{}
}

// QueueUpstream admits an IP packet for upstream delivery. It returns
// false if the upstream queue would overflow or the session is not ready
// to accept traffic (spec §4.3.1).
func (s *Session) QueueUpstream(pkt *netpkt.IPPacket, proto uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.currentPath.IsZero() {
		return false
	}
	s.counter++
	msg := routing.TransferMessage{
		Seq:      s.counter,
		Payload:  append([]byte(nil), pkt.Bytes()...),
		Protocol: proto,
		Priority: proto,
	}
	if err := s.upstream.Push(msg); err != nil {
		return false
	}
	return true
}

// ShouldBuildMore reports whether the pool should be asked for another
// path: fewer than the configured count are alive, or the current path is
// within one quarter-lifetime of expiry (spec §4.3.2).
func (s *Session) ShouldBuildMore(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return false
	}
	if s.pool.ShouldBuildMore(now) {
		return true
	}
	if s.currentPathObj != nil {
		quarter := s.pool.PathLifetime() / 4
		if now.Add(quarter).After(s.currentPathObj.ExpiresAt()) {
			return true
		}
	}
	return false
}

// HopsForBuild returns the builder's hops with blacklisted routers
// excluded and exitRouter forced as the terminal hop (spec §4.3.2).
func (s *Session) HopsForBuild() []pathpool.RouterContact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil
	}
	hops := s.pool.HopsForBuild()
	out := make([]pathpool.RouterContact, 0, len(hops)+1)
	for _, h := range hops {
		if _, bad := s.blacklist[h.ID]; bad {
			continue
		}
		out = append(out, h)
	}
	out = append(out, pathpool.RouterContact{ID: s.exitRouter})
	return out
}

// HandlePathBuilt makes a freshly built path a handshake candidate by
// sending it an ObtainExit request (spec §4.3.3).
func (s *Session) HandlePathBuilt(ctx context.Context, p pathpool.Path) {
	s.mu.Lock()
	if s.state == StateInit {
		s.state = StateBuilding
	}
	s.pendingPath = p
	s.handshakeUntil = time.Now().Add(HandshakeTimeout)
	pool := s.pool
	req := routing.ObtainExit{
		Identity:        s.identity,
		Exit:            s.kind.ExitFlag(),
		Expires:         0,
		BundleRC:        s.bundleRC,
		ProtocolVersion: buildinfo.ProtocolVersion,
	}
	s.mu.Unlock()

	if pool == nil {
		return
	}
	dlog.Debugf(ctx, "sending ObtainExit on path %s (exit=%v)", p.ID(), req.Exit)
	pool.SendRoutingMessage(p, routing.TransferMessage{Priority: 0, Handshake: &req})
}

// HandleGotExit processes the handshake reply for a path that was sent an
// ObtainExit request.
func (s *Session) HandleGotExit(ctx context.Context, p pathpool.Path, reply routing.GotExit) {
	// A peer advertising an incompatible major protocol version fails the
	// handshake outright; version 0 means the field was left unset and is
	// treated as compatible.
	if reply.Success && reply.ProtocolVersion.Major != 0 && reply.ProtocolVersion.Major != buildinfo.ProtocolVersion.Major {
		reply.Success = false
	}

	s.mu.Lock()
	if reply.Success {
		s.currentPath = p.ID()
		s.currentPathObj = p
		s.state = StateReady
		s.lastUse = time.Now()
		firstTime := !s.everReady
		s.everReady = true
		hooks := s.readyHooks
		s.readyHooks = nil
		s.mu.Unlock()

		if firstTime {
			for _, h := range hooks {
				h(s, true)
			}
		}
		dlog.Debugf(ctx, "session ready on path %s", p.ID())
		return
	}

	hops := p.Hops()
	if len(hops) > 1 {
		for _, h := range hops[:len(hops)-1] {
			s.blacklist[h] = struct{}{}
		}
	}
	if s.pendingPath != nil && s.pendingPath.ID() == p.ID() {
		s.pendingPath = nil
	}
	s.mu.Unlock()
	dlog.Debugf(ctx, "handshake rejected on path %s", p.ID())
}

// HandlePathDied clears current_path if it matches the dead path and
// requests a rebuild (spec §4.3.6).
func (s *Session) HandlePathDied(p pathpool.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentPath == p.ID() {
		s.currentPath = wire.ZeroPathID
		s.currentPathObj = nil
		if s.state == StateReady {
			s.state = StateRebuilding
		}
	}
}

// CheckPathDead lets the pool ask whether a path it still references
// should be considered dead by this session (supplements spec.md from
// original_source's urgent-rebuild handling; not itself in spec.md).
func (s *Session) CheckPathDead(p pathpool.Path, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath != p.ID() && (s.pendingPath == nil || s.pendingPath.ID() != p.ID())
}

// HandleTrafficDrop increments the per-session drop counter without
// failing the session (spec §4.3.6).
func (s *Session) HandleTrafficDrop(p pathpool.Path, pid wire.PathID, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCount++
}

// HandleTraffic enqueues a downstream packet by sequence number and
// flushes whatever is now in order (spec §4.3.5).
func (s *Session) HandleTraffic(ctx context.Context, p pathpool.Path, buf []byte, seq uint64, proto uint8) {
	pkt := netpkt.New(buf, time.Now())
	if pkt == nil {
		s.HandleTrafficDrop(p, p.ID(), seq)
		return
	}
	s.mu.Lock()
	accepted := s.downstream.Push(seq, pkt, pkt.Timestamp)
	if accepted {
		s.lastUse = time.Now()
	}
	s.mu.Unlock()
	if !accepted {
		s.HandleTrafficDrop(p, p.ID(), seq)
		return
	}
	s.FlushDownstream(ctx)
}

// FlushDownstream releases every in-order buffered packet to write_packet
// (spec §4.3.5).
func (s *Session) FlushDownstream(ctx context.Context) {
	s.mu.Lock()
	if s.writePacket == nil {
		s.mu.Unlock()
		return
	}
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	ready := s.downstream.DrainReady(time.Now(), queue.StaleWindow)
	wp := s.writePacket
	s.mu.Unlock()

	for _, item := range ready {
		pkt := item.(*netpkt.IPPacket)
		wp(ctx, pkt.Bytes())
	}
}

// FlushUpstream drains the tiered upstream queue into the current path,
// accumulating an RTT estimate (spec §4.3.4). It is non-blocking: if the
// path's own outgoing queue is saturated the message is retained at the
// head of its class for the next flush.
func (s *Session) FlushUpstream(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopping || s.state == StateStopped {
		s.mu.Unlock()
		return errcat.NoSession.New("session stopping")
	}
	path := s.currentPathObj
	pool := s.pool
	s.mu.Unlock()

	if path == nil || pool == nil {
		return errcat.NoPath.New("no alive path for current exit")
	}

	var rttSum float64
	var flushed uint64
	for {
		s.mu.Lock()
		msg, ok := s.upstream.DrainOne()
		s.mu.Unlock()
		if !ok {
			break
		}
		if !pool.SendRoutingMessage(path, msg) {
			s.mu.Lock()
			s.upstream.Requeue(msg)
			s.mu.Unlock()
			break
		}
		rtt := path.Latency() * 2
		rttSum += float64(rtt) * float64(rtt)
		flushed++
	}

	if flushed > 0 {
		s.mu.Lock()
		s.rms += rttSum
		s.flushN += flushed
		if s.flushN > 0 {
			s.estRTT = time.Duration(math.Sqrt(s.rms / float64(s.flushN)))
		}
		s.lastUse = time.Now()
		s.mu.Unlock()
	}
	return nil
}

// EstimatedRTT returns the session's running RTT estimate.
func (s *Session) EstimatedRTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estRTT
}

// Stop schedules a close-exit frame on the live path (if any), marks the
// session STOPPING, and drains pending downstream packets. If the session
// is stopped before ever reaching ready, every hook registered via
// AddReadyHook is invoked with ok=false instead of being left pending
// (spec §5, §7). It is idempotent and returns true if a close-exit message
// was dispatched.
func (s *Session) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if s.state == StateStopping || s.state == StateStopped {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	path := s.currentPathObj
	pool := s.pool
	var failedHooks []ReadyHook
	if !s.everReady {
		failedHooks = s.readyHooks
		s.readyHooks = nil
	}
	s.mu.Unlock()

	for _, h := range failedHooks {
		h(s, false)
	}

	s.FlushDownstream(ctx)

	dispatched := false
	if path != nil && pool != nil {
		dispatched = pool.SendRoutingMessage(path, routing.TransferMessage{Priority: 0})
	}

	s.mu.Lock()
	s.state = StateStopped
	s.currentPath = wire.ZeroPathID
	s.currentPathObj = nil
	s.mu.Unlock()

	return dispatched
}

// ExtractStatus returns a serializable snapshot of the session, surfaced
// by the "status" RPC call (supplements spec.md from
// llarp/exit/session.hpp; not itself in spec.md).
type Status struct {
	InstanceID    string
	State         string
	CurrentPath   string
	ExitRouter    string
	UpstreamLen   int
	DownstreamLen int
	DroppedCount  uint64
	EstimatedRTT  time.Duration
}

func (s *Session) ExtractStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		InstanceID:    s.instanceID.String(),
		State:         s.state.String(),
		CurrentPath:   s.currentPath.String(),
		ExitRouter:    s.exitRouter.String(),
		UpstreamLen:   s.upstream.Len(),
		DownstreamLen: s.downstream.Len(),
		DroppedCount:  s.dropCount,
		EstimatedRTT:  s.estRTT,
	}
}
