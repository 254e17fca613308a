package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/exit"
	"github.com/veilnet/veild/pkg/resolvename"
	"github.com/veilnet/veild/pkg/wire"
)

// ExitRequest is the body of the "exit" RPC call (spec §6).
type ExitRequest struct {
	Exit     string `json:"exit,omitempty"`
	Unmap    bool   `json:"unmap,omitempty"`
	Range    string `json:"range,omitempty"`
	Token    string `json:"token,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Controller is what the RPC layer drives: mapping/unmapping an exit and
// reporting status. The core's Session/routepoker.Poker satisfy the pieces
// of this through a thin adapter the daemon wiring provides.
type Controller interface {
	MapExit(ctx context.Context, req ExitRequest) error
	UnmapExit(ctx context.Context, req ExitRequest) error
	Status(ctx context.Context) exit.Status
}

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server is the local control-socket RPC listener (spec §6).
type Server struct {
	socketPath string
	ctrl       Controller
}

// New returns a Server bound to socketPath and ctrl.
func New(socketPath string, ctrl Controller) *Server {
	return &Server{socketPath: socketPath, ctrl: ctrl}
}

// Run listens on the unix socket and serves requests until ctx is
// cancelled, using dgroup to supervise one goroutine per connection, the
// same pattern the teacher uses for its background processes.
func (s *Server) Run(ctx context.Context) error {
	if err := removeStaleSocket(ctx, s.socketPath); err != nil {
		return err
	}
	ln, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	g.Go("accept", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			ln.Close()
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				dlog.Errorf(ctx, "rpcserver: accept: %v", err)
				continue
			}
			g.Go("conn", func(ctx context.Context) error {
				s.serveConn(ctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			enc.Encode(response{Error: "invalid request"})
			continue
		}
		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			dlog.Errorf(ctx, "rpcserver: write response: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	switch req.Method {
	case "exit":
		return s.handleExit(ctx, req.Params)
	case "status":
		return response{Result: s.ctrl.Status(ctx)}
	case "version":
		return response{Result: map[string]string{"version": "0.1.0"}}
	case "halt", "config":
		// Not part of the core (spec §6).
		return response{Result: "OK"}
	default:
		return response{Error: "unknown method"}
	}
}

func (s *Server) handleExit(ctx context.Context, params json.RawMessage) response {
	var req ExitRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return response{Error: "invalid exit address"}
		}
	}

	if req.Unmap {
		if err := s.ctrl.UnmapExit(ctx, req); err != nil {
			return response{Error: err.Error()}
		}
		return response{Result: "OK"}
	}

	if req.Exit == "" {
		return response{Error: "no exit address provided"}
	}
	if !resolvename.IsExitName(req.Exit) {
		if _, err := wire.RouterIDFromHex(req.Exit); err != nil {
			return response{Error: "invalid exit address"}
		}
	}

	if err := s.ctrl.MapExit(ctx, req); err != nil {
		return response{Error: rpcErrorString(err)}
	}
	return response{Result: "OK"}
}

// rpcErrorString maps an internal error to the exact user-visible strings
// named in spec §7: "could not find exit" for path-setup failure,
// "we could not find an exit with that name" for name-lookup failure.
func rpcErrorString(err error) string {
	switch errcat.GetCategory(err) {
	case errcat.NoPath, errcat.AuthFailed:
		return "could not find exit"
	default:
		return err.Error()
	}
}
