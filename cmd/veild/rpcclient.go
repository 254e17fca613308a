package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/veilnet/veild/internal/config"
)

type rpcRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// callRPC dials socketPath (or the default socket if empty), sends one
// request line, and decodes the single response line. Mirrors the
// one-shot request/response shape of internal/rpcserver.Server.serveConn.
func callRPC(socketPath, method string, params interface{}) (json.RawMessage, error) {
	if socketPath == "" {
		p, err := config.DefaultRPCSocketPath()
		if err != nil {
			return nil, err
		}
		socketPath = p
	}

	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("is veild running? %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(rpcRequest{Method: method, Params: params}); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("no response from veild")
	}
	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}
