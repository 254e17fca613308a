// Package pathpool defines the PathPool collaborator contract ExitSession
// depends on (spec §4.2, §6). No real onion-path builder is implemented
// here — building circuits is explicitly out of core scope — but a small
// in-memory Simulated pool is provided for tests, grounded on the
// map+mutex+factory idiom of the teacher's connpool.Pool
// (pkg/connpool/pool.go).
package pathpool

import (
	"time"

	"github.com/veilnet/veild/pkg/routing"
	"github.com/veilnet/veild/pkg/wire"
)

// Path is the handle the core holds to a live onion circuit.
type Path interface {
	ID() wire.PathID
	// Hops returns the intermediate routers this path was built through,
	// terminal hop last.
	Hops() []wire.RouterID
	// Latency is this path's own measured round-trip to its first hop.
	Latency() time.Duration
	// ExpiresAt is the wall-clock time this path is scheduled to die.
	ExpiresAt() time.Time
}

// RouterContact is an opaque descriptor for a candidate hop, as returned
// by HopsForBuild.
type RouterContact struct {
	ID      wire.RouterID
	Latency time.Duration
}

// Pool is the generic onion-path-builder collaborator the core consumes.
// It does not own build logic; implementations decide how to select,
// build, and retire paths.
type Pool interface {
	ShouldBuildMore(now time.Time) bool
	// HopsForBuild returns the builder's chosen intermediate hops, or nil
	// if the builder has nothing to offer right now.
	HopsForBuild() []RouterContact
	OnPathBuilt(p Path)
	OnPathDied(p Path)
	// SendRoutingMessage enqueues an upstream frame on p's own outgoing
	// queue; it returns false if that queue is saturated.
	SendRoutingMessage(p Path, msg routing.TransferMessage) bool
	GetPathByRouter(rid wire.RouterID) (Path, bool)
	NumberOfPaths() int
	PathLifetime() time.Duration
}
