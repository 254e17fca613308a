package pathpool

import (
	"sync"
	"time"

	"github.com/veilnet/veild/pkg/routing"
	"github.com/veilnet/veild/pkg/wire"
)

// simulatedPath is a fake Path used by Simulated.
type simulatedPath struct {
	id        wire.PathID
	hops      []wire.RouterID
	latency   time.Duration
	expiresAt time.Time
}

func (p *simulatedPath) ID() wire.PathID       { return p.id }
func (p *simulatedPath) Hops() []wire.RouterID { return p.hops }
func (p *simulatedPath) Latency() time.Duration { return p.latency }
func (p *simulatedPath) ExpiresAt() time.Time   { return p.expiresAt }

// Simulated is an in-memory Pool for tests: it never actually builds a
// circuit, it just hands back Path handles the test controls directly.
// Grounded on the factory-and-registry idiom of connpool.Pool.
type Simulated struct {
	mu           sync.Mutex
	paths        map[wire.PathID]*simulatedPath
	byRouter     map[wire.RouterID]*simulatedPath
	sendOK       bool
	buildMore    bool
	lifetime     time.Duration
	builtHook    func(Path)
	diedHook     func(Path)
	sentMessages []routing.TransferMessage
}

// NewSimulated returns an empty simulated pool that accepts sends by
// default.
func NewSimulated() *Simulated {
	return &Simulated{
		paths:    make(map[wire.PathID]*simulatedPath),
		byRouter: make(map[wire.RouterID]*simulatedPath),
		sendOK:   true,
		lifetime: 10 * time.Minute,
	}
}

// SetSendOK controls whether SendRoutingMessage succeeds.
func (s *Simulated) SetSendOK(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendOK = ok
}

// SetShouldBuildMore controls the ShouldBuildMore return value.
func (s *Simulated) SetShouldBuildMore(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildMore = v
}

// AddPath registers a new simulated path and invokes the built-hook if one
// is set. No method of Simulated sets the built-hook or the died-hook, so
// neither AddPath nor KillPath calls a hook on a pool from NewSimulated.
func (s *Simulated) AddPath(id wire.PathID, terminal wire.RouterID, latency time.Duration) Path {
	s.mu.Lock()
	p := &simulatedPath{id: id, hops: []wire.RouterID{terminal}, latency: latency, expiresAt: time.Now().Add(s.lifetime)}
	s.paths[id] = p
	s.byRouter[terminal] = p
	hook := s.builtHook
	s.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return p
}

// KillPath removes a path and invokes the died-hook if registered.
func (s *Simulated) KillPath(id wire.PathID) {
	s.mu.Lock()
	p, ok := s.paths[id]
	if ok {
		delete(s.paths, id)
		for rid, v := range s.byRouter {
			if v.id == id {
				delete(s.byRouter, rid)
			}
		}
	}
	hook := s.diedHook
	s.mu.Unlock()
	if ok && hook != nil {
		hook(p)
	}
}

// SentMessages returns every message accepted by SendRoutingMessage so far.
func (s *Simulated) SentMessages() []routing.TransferMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]routing.TransferMessage, len(s.sentMessages))
	copy(out, s.sentMessages)
	return out
}

func (s *Simulated) ShouldBuildMore(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildMore
}

func (s *Simulated) HopsForBuild() []RouterContact { return nil }

func (s *Simulated) OnPathBuilt(p Path) {}

func (s *Simulated) OnPathDied(p Path) {}

func (s *Simulated) SendRoutingMessage(p Path, msg routing.TransferMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sendOK {
		return false
	}
	s.sentMessages = append(s.sentMessages, msg)
	return true
}

func (s *Simulated) GetPathByRouter(rid wire.RouterID) (Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byRouter[rid]
	return p, ok
}

func (s *Simulated) NumberOfPaths() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func (s *Simulated) PathLifetime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifetime
}
