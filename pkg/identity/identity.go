// Package identity loads or generates the raw secret-key bytes an
// ExitSession uses as its session identity, and derives a RouterID from a
// public key. Wire-level signing is out of scope (the onion-routing wire
// protocol is a Non-goal); only the byte identity the core needs is
// implemented here. Grounded on BaseSession::LoadIdentityFromFile in
// llarp/exit/session.hpp.
package identity

import (
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// KeySize is the length in bytes of a raw secret key (spec §6: "64-byte
// secret key, raw").
const KeySize = 64

// Key is a raw secret-key identity.
type Key [KeySize]byte

// Generate returns a fresh random Key.
func Generate() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("identity: generate: %w", err)
	}
	return k, nil
}

// LoadFromFile reads a raw KeySize-byte secret key from path. If the file
// does not exist, it generates a new key and writes it to path with mode
// 0600, matching LoadIdentityFromFile's create-if-absent behavior.
func LoadFromFile(path string) (Key, error) {
	var k Key
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return k, fmt.Errorf("identity: %s: expected %d bytes, got %d", path, KeySize, len(data))
		}
		copy(k[:], data)
		return k, nil
	}
	if !os.IsNotExist(err) {
		return k, fmt.Errorf("identity: read %s: %w", path, err)
	}
	k, err = Generate()
	if err != nil {
		return k, err
	}
	if err := os.WriteFile(path, k[:], 0o600); err != nil {
		return k, fmt.Errorf("identity: write %s: %w", path, err)
	}
	return k, nil
}

// DeriveRouterID hashes a public-key-shaped byte slice down to the 32-byte
// RouterID space using blake2b, matching the hash primitive the original
// implementation uses elsewhere in its router identity derivation.
func DeriveRouterID(pub []byte) ([32]byte, error) {
	var out [32]byte
	h, err := blake2b.New256(nil)
	if err != nil {
		return out, err
	}
	h.Write(pub)
	copy(out[:], h.Sum(nil))
	return out, nil
}
