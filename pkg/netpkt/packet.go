// Package netpkt implements IPPacket: an owned byte buffer carrying a
// single IPv4 or IPv6 datagram, with a capture timestamp and the small set
// of accessors the core needs (version, addresses, protocol, zeroing, and
// ICMP-unreachable synthesis). Grounded on ip_packet.hpp from the original
// implementation and on the header parsing in the teacher's router.go.
package netpkt

import (
	"encoding/binary"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// MaxSize is the largest datagram the core will carry end to end.
const MaxSize = 1500

// IPPacket is an owned, fixed-capacity buffer holding one IP datagram.
type IPPacket struct {
	Timestamp time.Time
	buf       []byte // length == the datagram size; capacity MaxSize when built by New
}

// New copies data into a new IPPacket. It returns nil if data exceeds
// MaxSize.
func New(data []byte, ts time.Time) *IPPacket {
	if len(data) > MaxSize {
		return nil
	}
	buf := make([]byte, len(data), MaxSize)
	copy(buf, data)
	return &IPPacket{Timestamp: ts, buf: buf}
}

// Bytes returns the raw datagram bytes. The caller must not retain the
// slice past the next mutation of the packet.
func (p *IPPacket) Bytes() []byte { return p.buf }

// Size returns the datagram length in bytes.
func (p *IPPacket) Size() int { return len(p.buf) }

// Version returns 4 or 6, or 0 if the buffer is too short to tell.
func (p *IPPacket) Version() int {
	if len(p.buf) < 1 {
		return 0
	}
	return int(p.buf[0] >> 4)
}

// IsV4 reports whether the packet is an IPv4 datagram.
func (p *IPPacket) IsV4() bool { return p.Version() == 4 }

// IsV6 reports whether the packet is an IPv6 datagram.
func (p *IPPacket) IsV6() bool { return p.Version() == 6 }

// Protocol returns the IANA protocol/next-header number, or 0 if unknown.
func (p *IPPacket) Protocol() uint8 {
	switch p.Version() {
	case 4:
		if len(p.buf) < 10 {
			return 0
		}
		return p.buf[9]
	case 6:
		if len(p.buf) < 7 {
			return 0
		}
		return p.buf[6]
	default:
		return 0
	}
}

// SrcV4 returns the source address of an IPv4 packet, or the zero value if
// the packet is not IPv4 or too short.
func (p *IPPacket) SrcV4() net.IP {
	if !p.IsV4() || len(p.buf) < 16 {
		return nil
	}
	return net.IP(p.buf[12:16]).To4()
}

// DstV4 returns the destination address of an IPv4 packet.
func (p *IPPacket) DstV4() net.IP {
	if !p.IsV4() || len(p.buf) < 20 {
		return nil
	}
	return net.IP(p.buf[16:20]).To4()
}

// SrcV6 returns the source address of an IPv6 packet.
func (p *IPPacket) SrcV6() net.IP {
	if !p.IsV6() || len(p.buf) < 24 {
		return nil
	}
	return net.IP(append([]byte(nil), p.buf[8:24]...))
}

// DstV6 returns the destination address of an IPv6 packet.
func (p *IPPacket) DstV6() net.IP {
	if !p.IsV6() || len(p.buf) < 40 {
		return nil
	}
	return net.IP(append([]byte(nil), p.buf[24:40]...))
}

// UpdateIPv4Address rewrites the source and destination of a v4 packet and
// recomputes the header checksum.
func (p *IPPacket) UpdateIPv4Address(src, dst net.IP) {
	if !p.IsV4() || len(p.buf) < 20 {
		return
	}
	if s4 := src.To4(); s4 != nil {
		copy(p.buf[12:16], s4)
	}
	if d4 := dst.To4(); d4 != nil {
		copy(p.buf[16:20], d4)
	}
	p.fixIPv4Checksum()
}

// UpdateIPv6Address rewrites the source and destination of a v6 packet.
func (p *IPPacket) UpdateIPv6Address(src, dst net.IP) {
	if !p.IsV6() || len(p.buf) < 40 {
		return
	}
	if s6 := src.To16(); s6 != nil {
		copy(p.buf[8:24], s6)
	}
	if d6 := dst.To16(); d6 != nil {
		copy(p.buf[24:40], d6)
	}
}

// ZeroAddresses zeroes both source and destination addresses in place.
func (p *IPPacket) ZeroAddresses() {
	switch p.Version() {
	case 4:
		if len(p.buf) >= 20 {
			for i := 12; i < 20; i++ {
				p.buf[i] = 0
			}
			p.fixIPv4Checksum()
		}
	case 6:
		if len(p.buf) >= 40 {
			for i := 8; i < 40; i++ {
				p.buf[i] = 0
			}
		}
	}
}

// ZeroSourceAddress zeroes only the source address in place.
func (p *IPPacket) ZeroSourceAddress() {
	switch p.Version() {
	case 4:
		if len(p.buf) >= 16 {
			for i := 12; i < 16; i++ {
				p.buf[i] = 0
			}
			p.fixIPv4Checksum()
		}
	case 6:
		if len(p.buf) >= 24 {
			for i := 8; i < 24; i++ {
				p.buf[i] = 0
			}
		}
	}
}

func ihl(buf []byte) int {
	if len(buf) < 1 {
		return 0
	}
	return int(buf[0]&0x0f) * 4
}

func (p *IPPacket) fixIPv4Checksum() {
	hlen := ihl(p.buf)
	if hlen < 20 || len(p.buf) < hlen {
		return
	}
	p.buf[10] = 0
	p.buf[11] = 0
	sum := ipChecksum(p.buf[:hlen])
	binary.BigEndian.PutUint16(p.buf[10:12], sum)
}

func ipChecksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// MakeICMPUnreachable synthesizes an ICMP (or ICMPv6) destination
// unreachable message quoting this packet, addressed back to its own
// source, matching ip_packet.hpp's MakeICMPUnreachable.
func (p *IPPacket) MakeICMPUnreachable() *IPPacket {
	switch p.Version() {
	case 4:
		return p.makeICMPv4Unreachable()
	case 6:
		return p.makeICMPv6Unreachable()
	default:
		return nil
	}
}

func (p *IPPacket) makeICMPv4Unreachable() *IPPacket {
	hlen := ihl(p.buf)
	if hlen < 20 || len(p.buf) < hlen {
		return nil
	}
	quoteLen := hlen + 8
	if quoteLen > len(p.buf) {
		quoteLen = len(p.buf)
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: 1, // host unreachable
		Body: &icmp.DstUnreach{Data: p.buf[:quoteLen]},
	}
	icmpBytes, err := msg.Marshal(nil)
	if err != nil {
		return nil
	}

	out := make([]byte, hlen+len(icmpBytes))
	copy(out, p.buf[:hlen])
	out[9] = 1 // protocol = ICMP
	src := p.buf[12:16]
	dst := p.buf[16:20]
	copy(out[12:16], dst)
	copy(out[16:20], src)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	copy(out[hlen:], icmpBytes)
	out[10] = 0
	out[11] = 0
	hcs := ipChecksum(out[:hlen])
	binary.BigEndian.PutUint16(out[10:12], hcs)

	return &IPPacket{Timestamp: p.Timestamp, buf: out}
}

func (p *IPPacket) makeICMPv6Unreachable() *IPPacket {
	if len(p.buf) < 40 {
		return nil
	}
	quoteLen := len(p.buf)
	if quoteLen > 40+8 {
		quoteLen = 40 + 8
	}

	src := append(net.IP(nil), p.buf[8:24]...)
	dst := append(net.IP(nil), p.buf[24:40]...)

	msg := icmp.Message{
		Type: ipv6.ICMPTypeDestinationUnreachable,
		Code: 3, // address unreachable
		Body: &icmp.DstUnreach{Data: p.buf[:quoteLen]},
	}
	// ICMPv6's checksum covers a pseudo-header of (reversed) src/dst, so
	// the reply is marshaled as if sent from dst to src.
	icmpBytes, err := msg.Marshal(icmp.IPv6PseudoHeader(dst, src))
	if err != nil {
		return nil
	}

	out := make([]byte, 40+len(icmpBytes))
	copy(out, p.buf[:40])
	out[6] = 58 // ICMPv6 next-header
	copy(out[8:24], dst)
	copy(out[24:40], src)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(icmpBytes)))
	copy(out[40:], icmpBytes)

	return &IPPacket{Timestamp: p.Timestamp, buf: out}
}
