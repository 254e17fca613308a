// Package errcat categorizes the core's error kinds so callers can tell a
// transient, locally-recovered condition from one that must surface
// through the ready-hook or RPC layer. Adapted from the teacher's
// pkg/client/errcat package, generalized from CLI-facing categories to the
// error kinds named in the core spec (§7).
package errcat

import (
	"errors"
	"fmt"
)

// Category distinguishes how an error should propagate.
type Category int

const (
	// OK is the zero category; GetCategory returns it for a nil error.
	OK Category = iota
	// QueueFull: upstream admission denied; caller drops the packet.
	QueueFull
	// NoPath: no alive path for the current exit; caller retries next
	// build tick.
	NoPath
	// NoSession: send attempted without a cached session key.
	NoSession
	// AuthFailed: handshake rejected; surfaces via ready-hook and RPC.
	AuthFailed
	// NetworkDown: RoutePoker found no default gateway.
	NetworkDown
	// NotInitialized: RoutePoker method called before init(); a
	// programming error, fatal at the caller.
	NotInitialized
	// PlatformError: a platform call failed; logged, retried next tick.
	PlatformError
	// Unknown is used for errors with no assigned category.
	Unknown
)

func (c Category) String() string {
	switch c {
	case OK:
		return "OK"
	case QueueFull:
		return "QueueFull"
	case NoPath:
		return "NoPath"
	case NoSession:
		return "NoSession"
	case AuthFailed:
		return "AuthFailed"
	case NetworkDown:
		return "NetworkDown"
	case NotInitialized:
		return "NotInitialized"
	case PlatformError:
		return "PlatformError"
	default:
		return "Unknown"
	}
}

// Transient reports whether errors of this category are recovered locally
// and never surface to RPC (spec §7 propagation policy).
func (c Category) Transient() bool {
	switch c {
	case QueueFull, NoPath, NoSession, NetworkDown, PlatformError:
		return true
	default:
		return false
	}
}

type categorized struct {
	error
	category Category
}

// New creates a categorized error from an error, a string, or any value
// convertible via its '%v' formatter.
func (c Category) New(untypedErr interface{}) error {
	var err error
	switch v := untypedErr.(type) {
	case nil:
		return nil
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("%v", v)
	}
	return &categorized{error: err, category: c}
}

// Newf creates a categorized error from a format string, as with
// fmt.Errorf (supports %w).
func (c Category) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), category: c}
}

// Unwrap exposes the underlying error to errors.Is/As.
func (ce *categorized) Unwrap() error { return ce.error }

// GetCategory returns the category of err, walking its Unwrap chain. It
// returns OK for a nil error and Unknown for an uncategorized one.
func GetCategory(err error) Category {
	if err == nil {
		return OK
	}
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.category
		}
		if err = errors.Unwrap(err); err == nil {
			return Unknown
		}
	}
}
