// Package rpcserver implements the core's local control-socket RPC
// surface: "exit" and "status" (spec §6). Listener setup is adapted from
// the teacher's pkg/client/socket/sockets_unix.go (umask handling,
// EADDRINUSE detection, SetUnlinkOnClose(false)); the exit/status JSON
// contract and its error strings are grounded on llarp/rpc/rpc_server.cpp.
package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func listen(socketPath string) (net.Listener, error) {
	if os.Geteuid() == 0 {
		origUmask := unix.Umask(0)
		defer unix.Umask(origUmask)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		if errors.Is(err, unix.EADDRINUSE) {
			err = fmt.Errorf("socket %q exists so veild is either already running or terminated ungracefully", socketPath)
		}
		return nil, err
	}
	if ul, ok := listener.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	return listener, nil
}

// exists reports whether a unix socket file is present at path.
func exists(path string) (bool, error) {
	s, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return false, err
	}
	if s.Mode()&os.ModeSocket == 0 {
		return false, fmt.Errorf("%q is not a socket", path)
	}
	return true, nil
}

// removeStaleSocket removes path if it exists and is a socket with no
// live listener behind it, so a prior ungraceful shutdown doesn't block a
// fresh start. It dials the socket first and returns an error, leaving the
// file in place, if a listener answers.
func removeStaleSocket(ctx context.Context, path string) error {
	ok, err := exists(path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, dialErr := net.Dial("unix", path); dialErr == nil {
		return fmt.Errorf("socket %q is already in use", path)
	}
	return os.Remove(path)
}
