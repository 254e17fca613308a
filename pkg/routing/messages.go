// Package routing holds the small value types that flow between
// ExitSession and its PathPool collaborator: upstream TransferMessage,
// downstream DownstreamPkt, and the ObtainExit/GotExit handshake pair.
// Wire encoding is out of scope (spec Non-goal); these are the in-process
// Go structs the core builds and consumes.
package routing

import (
	"github.com/blang/semver"

	"github.com/veilnet/veild/pkg/netpkt"
)

// TransferMessage is an upstream unit carried by a path.
type TransferMessage struct {
	Seq      uint64
	Payload  []byte
	Protocol uint8
	// Priority is the tiered-queue class; lower numeric value is higher
	// priority (spec §4.1, §9 open-question (b)).
	Priority uint8
	// Handshake carries the session's ObtainExit request when this message
	// is the initial handshake frame sent by HandlePathBuilt (spec §4.3.3),
	// rather than ordinary upstream traffic; nil otherwise.
	Handshake *ObtainExit
}

// DownstreamPkt is a downstream unit; Seq is monotonic per conversation as
// supplied by the remote peer.
type DownstreamPkt struct {
	Seq    uint64
	Packet *netpkt.IPPacket
}

// ObtainExit is the request a session sends on a freshly built path to
// request exit service from it.
type ObtainExit struct {
	Identity [32]byte
	// Exit is true for exit-mode sessions (E=1), false for
	// direct-to-snode sessions (E=0).
	Exit bool
	// Expires is reserved for a future expiration-time field (X in the
	// original protocol); always zero today.
	Expires  uint64
	BundleRC bool
	// ProtocolVersion is the requesting side's handshake protocol version
	// (spec §9 open-question (c)); a peer on an incompatible major version
	// fails the handshake rather than negotiating down.
	ProtocolVersion semver.Version
}

// GotExit is the reply to an ObtainExit request.
type GotExit struct {
	Success         bool
	Timestamp       uint64
	ProtocolVersion semver.Version
}
