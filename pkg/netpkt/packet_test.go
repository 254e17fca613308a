package netpkt

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildV4(t *testing.T, proto byte, src, dst net.IP) []byte {
	t.Helper()
	buf := make([]byte, 20)
	buf[0] = 0x45
	buf[9] = proto
	copy(buf[12:16], src.To4())
	copy(buf[16:20], dst.To4())
	return buf
}

func TestIPPacketVersionAndAddrs(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")
	p := New(buildV4(t, 6, src, dst), time.Unix(0, 0))
	require.NotNil(t, p)
	assert.True(t, p.IsV4())
	assert.False(t, p.IsV6())
	assert.Equal(t, uint8(6), p.Protocol())
	assert.True(t, src.To4().Equal(p.SrcV4()))
	assert.True(t, dst.To4().Equal(p.DstV4()))
}

func TestIPPacketRejectsOversize(t *testing.T) {
	p := New(make([]byte, MaxSize+1), time.Now())
	assert.Nil(t, p)
}

func TestZeroAddresses(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")
	p := New(buildV4(t, 17, src, dst), time.Now())
	require.NotNil(t, p)
	p.ZeroAddresses()
	assert.True(t, net.IPv4zero.Equal(p.SrcV4()) || p.SrcV4().Equal(net.IPv4(0, 0, 0, 0)))
	assert.True(t, p.DstV4().Equal(net.IPv4(0, 0, 0, 0)))
}

func TestMakeICMPUnreachableSwapsAddresses(t *testing.T) {
	src := net.ParseIP("10.0.0.1")
	dst := net.ParseIP("10.0.0.2")
	p := New(buildV4(t, 17, src, dst), time.Now())
	require.NotNil(t, p)
	icmp := p.MakeICMPUnreachable()
	require.NotNil(t, icmp)
	assert.True(t, icmp.IsV4())
	assert.Equal(t, uint8(1), icmp.Protocol())
	assert.True(t, dst.To4().Equal(icmp.SrcV4()))
	assert.True(t, src.To4().Equal(icmp.DstV4()))
}
