//go:build linux

package l2capsock

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/gogap/internal/gap"
)

// Socket-level constants for BTPROTO_L2CAP, not exposed by
// golang.org/x/sys/unix, mirroring internal/hcisock's afBluetooth
// constant set.
const (
	afBluetooth  = 31
	btProtoL2CAP = 0
)

// sockaddrL2 mirrors struct sockaddr_l2 from linux/bluetooth.h:
// sa_family (2), psm (2), bdaddr (6), cid (2), bdaddr_type (1).
type sockaddrL2 struct {
	Family   uint16
	PSM      uint16
	Addr     [6]byte
	CID      uint16
	AddrType uint8
}

func (s *sockaddrL2) bytes() []byte {
	buf := make([]byte, 14)
	binary.NativeEndian.PutUint16(buf[0:2], s.Family)
	binary.NativeEndian.PutUint16(buf[2:4], s.PSM)
	copy(buf[4:10], s.Addr[:])
	binary.NativeEndian.PutUint16(buf[10:12], s.CID)
	buf[12] = s.AddrType
	return buf
}

// AddressResolver looks up the device address bound to an active ACL
// handle, e.g. (*gap.ConnectionManager).AddressForHandle.
type AddressResolver func(handle uint16) (gap.DeviceAddress, bool)

// Opener is the reference gap.L2capOpener: one BTPROTO_L2CAP connect(2)
// per outbound channel request, run in its own goroutine since connect
// blocks until the peer's L2CAP layer accepts or rejects the channel.
type Opener struct {
	resolve AddressResolver
	logger  *slog.Logger
}

// New constructs an Opener. resolve translates the ACL handles
// OpenOutboundChannel is called with into the peer address the kernel's
// L2CAP socket API connects by.
func New(resolve AddressResolver, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{resolve: resolve, logger: logger}
}

// OpenOutboundChannel implements gap.L2capOpener.
func (o *Opener) OpenOutboundChannel(handle uint16, psm uint16, params gap.ChannelParameters, cb func(channelID uint16, err error)) {
	addr, ok := o.resolve(handle)
	if !ok {
		cb(0, fmt.Errorf("l2capsock: no address known for handle 0x%04x", handle))
		return
	}

	go o.connect(addr, psm, params, cb)
}

func (o *Opener) connect(addr gap.DeviceAddress, psm uint16, _ gap.ChannelParameters, cb func(channelID uint16, err error)) {
	fd, err := unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btProtoL2CAP)
	if err != nil {
		cb(0, fmt.Errorf("l2capsock: socket: %w", err))
		return
	}

	sa := &sockaddrL2{Family: uint16(afBluetooth), PSM: psm, Addr: addr.Bytes, AddrType: uint8(addr.Type)}
	if err := connectRaw(fd, sa); err != nil {
		_ = unix.Close(fd)
		cb(0, fmt.Errorf("l2capsock: connect psm 0x%04x to %s: %w", psm, addr, err))
		return
	}

	o.logger.Debug("l2cap channel opened", slog.String("peer", addr.String()), slog.Int("psm", int(psm)), slog.Int("fd", fd))
	// The file descriptor itself stands in for the channel id in this
	// reference implementation; SDP/service layers that need to read or
	// write on the channel do so through a *Channel wrapping this fd
	// (not modeled here, out of the core's contract surface).
	cb(uint16(fd), nil)
}

// connectRaw performs connect(2) against a sockaddr_l2. golang.org/x/sys/unix
// has no Sockaddr implementation for AF_BLUETOOTH, so the raw struct is
// marshaled by hand exactly as internal/hcisock.bindRaw does for bind(2).
func connectRaw(fd int, addr *sockaddrL2) error {
	b := addr.bytes()
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)))
	if errno != 0 {
		return errno
	}
	return nil
}
