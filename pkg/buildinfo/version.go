// Package buildinfo holds the version string compiled into veild, and the
// wire protocol version advertised in the Exit Session handshake. Adapted
// from the teacher's pkg/client/version.go use of blang/semver.
package buildinfo

import "github.com/blang/semver"

// Version is overridden at link time via -ldflags "-X".
var Version = "0.1.0-dev"

// ProtocolVersion is the Exit Session handshake's protocol version field
// (ObtainExit/GotExit's reserved version slot, spec §9 open question (c)):
// bumped on wire-incompatible changes to the handshake frames.
var ProtocolVersion = semver.MustParse("1.0.0")

// Semver parses Version as a semver.Version, falling back to the zero
// version if it isn't parseable (e.g. a non-release dev build string).
func Semver() semver.Version {
	v, err := semver.ParseTolerant(Version)
	if err != nil {
		return semver.Version{}
	}
	return v
}
