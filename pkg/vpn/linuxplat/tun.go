package linuxplat

import (
	"context"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/veilnet/veild/pkg/vpn"
)

const (
	ifReqSize  = 40
	tunDevPath = "/dev/net/tun"
)

// tunDevice is a vpn.NetworkInterface backed by a Linux TUN character
// device, opened via the same ioctl(TUNSETIFF) dance WireGuard-class tools
// use; no source for this survived in the retrieval pack's vif package
// (test-only), so this is written directly against golang.org/x/sys/unix.
type tunDevice struct {
	file *os.File
	info vpn.InterfaceInfo
}

func newTunDevice(ctx context.Context, info vpn.InterfaceInfo) (*tunDevice, error) {
	f, err := os.OpenFile(tunDevPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevPath, err)
	}

	var ifr [ifReqSize]byte
	copy(ifr[:unix.IFNAMSIZ], info.IfName)
	// IFF_TUN | IFF_NO_PI
	flags := uint16(0x0001 | 0x1000)
	ifr[unix.IFNAMSIZ] = byte(flags)
	ifr[unix.IFNAMSIZ+1] = byte(flags >> 8)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&ifr[0]))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF: %w", errno)
	}

	return &tunDevice{file: f, info: info}, nil
}

func (t *tunDevice) PollFD() int { return int(t.file.Fd()) }

func (t *tunDevice) IfName() string { return t.info.IfName }

func (t *tunDevice) Info() vpn.InterfaceInfo { return t.info }

func (t *tunDevice) HasNextPacket() bool { return false }

func (t *tunDevice) ReadNextPacket(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 1500)
	n, err := t.file.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *tunDevice) WritePacket(ctx context.Context, pkt []byte) (bool, error) {
	_, err := t.file.Write(pkt)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *tunDevice) Close() error { return t.file.Close() }
