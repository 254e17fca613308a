package rpcserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veild/pkg/errcat"
	"github.com/veilnet/veild/pkg/exit"
	"github.com/veilnet/veild/pkg/resolvename"
)

type fakeCtrl struct {
	mapErr   error
	unmapErr error
	status   exit.Status
}

func (f *fakeCtrl) MapExit(ctx context.Context, req ExitRequest) error   { return f.mapErr }
func (f *fakeCtrl) UnmapExit(ctx context.Context, req ExitRequest) error { return f.unmapErr }
func (f *fakeCtrl) Status(ctx context.Context) exit.Status               { return f.status }

func TestHandleExitNoAddressProvided(t *testing.T) {
	s := New("", &fakeCtrl{})
	resp := s.handleExit(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, "no exit address provided", resp.Error)
}

func TestHandleExitInvalidAddress(t *testing.T) {
	s := New("", &fakeCtrl{})
	resp := s.handleExit(context.Background(), json.RawMessage(`{"exit":"not-hex-and-no-dot"}`))
	assert.Equal(t, "invalid exit address", resp.Error)
}

func TestHandleExitNameNotFound(t *testing.T) {
	s := New("", &fakeCtrl{mapErr: resolvename.ErrNameNotFound})
	resp := s.handleExit(context.Background(), json.RawMessage(`{"exit":"foo.exit"}`))
	assert.Equal(t, "we could not find an exit with that name", resp.Error)
}

func TestHandleExitNoPathMapsToCouldNotFindExit(t *testing.T) {
	s := New("", &fakeCtrl{mapErr: errcat.NoPath.New("timed out")})
	hexAddr := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	resp := s.handleExit(context.Background(), json.RawMessage(`{"exit":"`+hexAddr+`"}`))
	assert.Equal(t, "could not find exit", resp.Error)
}

func TestHandleExitSuccess(t *testing.T) {
	s := New("", &fakeCtrl{})
	hexAddr := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	resp := s.handleExit(context.Background(), json.RawMessage(`{"exit":"`+hexAddr+`"}`))
	require.Empty(t, resp.Error)
	assert.Equal(t, "OK", resp.Result)
}

func TestHandleExitUnmap(t *testing.T) {
	s := New("", &fakeCtrl{})
	resp := s.handleExit(context.Background(), json.RawMessage(`{"unmap":true}`))
	assert.Equal(t, "OK", resp.Result)
}
