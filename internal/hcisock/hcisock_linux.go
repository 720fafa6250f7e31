//go:build linux

package hcisock

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// Socket-level constants not exposed by golang.org/x/sys/unix for the
// Bluetooth HCI address family (defined in linux/bluetooth.h /
// linux/hci.h, stable across kernel versions).
const (
	afBluetooth    = 31
	btProtoHCI     = 1
	hciChannelRaw  = 0
	solHCI         = 0
	hciFilter      = 2
	hciDevNone     = 0xFFFF
	packetTypeHCI  = 0x01 // HCI_COMMAND_PKT on write, or event/ACL tag on read
	hciEventPkt    = 0x04
	hciCommandPkt  = 0x01
)

// sockaddrHCI mirrors struct sockaddr_hci from linux/bluetooth.h:
// sa_family (2 bytes), hci_dev (2 bytes), hci_channel (2 bytes).
type sockaddrHCI struct {
	Family  uint16
	Dev     uint16
	Channel uint16
}

func (s *sockaddrHCI) bytes() []byte {
	buf := make([]byte, 6)
	binary.NativeEndian.PutUint16(buf[0:2], s.Family)
	binary.NativeEndian.PutUint16(buf[2:4], s.Dev)
	binary.NativeEndian.PutUint16(buf[4:6], s.Channel)
	return buf
}

// hciFilterStruct mirrors struct hci_filter: a type/event bitmask pair
// plus an opcode, set to the "accept everything" wildcard here since the
// gap package itself filters by event code.
type hciFilterStruct struct {
	TypeMask  uint32
	EventMask [2]uint32
	OpCode    uint16
}

// Transport is the reference gap.Transport implementation: one raw HCI
// socket bound to a single adapter (hci_dev index), with a single reader
// goroutine fanning decoded events into a buffered channel and a mutex
// serializing command writes exactly like the sibling project's
// per-session sender around its UDP PacketConn.
//
// Grounded on internal/netio/rawsock_linux.go's LinuxPacketConn: the
// same read-loop-plus-write-mutex shape, generalized from a UDP
// PacketConn's ReadMsgUDP/WriteToUDP pair to raw Read/Write syscalls on
// an AF_BLUETOOTH socket.
type Transport struct {
	fd int

	writeMu sync.Mutex

	events chan hcicodec.Event
	done   chan struct{}

	logger *slog.Logger
}

// Open binds a raw HCI socket to adapter devID (0 for hci0) and starts
// the reader goroutine. Requires CAP_NET_RAW or CAP_NET_ADMIN.
func Open(devID uint16, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fd, err := unix.Socket(afBluetooth, unix.SOCK_RAW, btProtoHCI)
	if err != nil {
		return nil, fmt.Errorf("hcisock: socket: %w", err)
	}

	addr := &sockaddrHCI{Family: uint16(afBluetooth), Dev: devID, Channel: hciChannelRaw}
	if err := bindRaw(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hcisock: bind to hci%d: %w", devID, err)
	}

	// Accept every event and ACL/SCO data type; the gap package applies
	// its own per-opcode-class filtering above this layer.
	filter := hciFilterStruct{TypeMask: 0xFFFFFFFF, EventMask: [2]uint32{0xFFFFFFFF, 0xFFFFFFFF}}
	if err := setFilter(fd, &filter); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("hcisock: set filter: %w", err)
	}

	t := &Transport{
		fd:     fd,
		events: make(chan hcicodec.Event, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go t.readLoop()
	return t, nil
}

// Send implements gap.Transport: writes one HCI command packet, prefixed
// by the HCI packet-type byte and the little-endian opcode + length
// header the H4 transport framing requires even over a raw socket.
func (t *Transport) Send(cmd hcicodec.Command) error {
	buf := make([]byte, 1+2+1+len(cmd.Params))
	buf[0] = hciCommandPkt
	binary.LittleEndian.PutUint16(buf[1:3], uint16(cmd.OpCode))
	buf[3] = byte(len(cmd.Params))
	copy(buf[4:], cmd.Params)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := unix.Write(t.fd, buf)
	if err != nil {
		return fmt.Errorf("hcisock: write command 0x%04x: %w", cmd.OpCode, err)
	}
	return nil
}

// Events implements gap.Transport.
func (t *Transport) Events() <-chan hcicodec.Event {
	return t.events
}

// Close stops the reader goroutine and releases the socket.
func (t *Transport) Close() error {
	close(t.done)
	err := unix.Close(t.fd)
	if err != nil {
		return fmt.Errorf("hcisock: close: %w", err)
	}
	return nil
}

// bindRaw performs bind(2) against a sockaddr_hci. golang.org/x/sys/unix
// has no Sockaddr implementation for AF_BLUETOOTH, so the raw struct is
// marshaled by hand and passed through the generic bind syscall exactly
// as unix.Bind does internally for the address families it does know.
func bindRaw(fd int, addr *sockaddrHCI) error {
	b := addr.bytes()
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)))
	if errno != 0 {
		return errno
	}
	return nil
}

// setFilter installs an HCI_FILTER at SOL_HCI, the raw-socket equivalent
// of unix.SetsockoptInt for a struct-valued option golang.org/x/sys/unix
// has no typed helper for.
func setFilter(fd int, filter *hciFilterStruct) error {
	buf := make([]byte, 14)
	binary.NativeEndian.PutUint32(buf[0:4], filter.TypeMask)
	binary.NativeEndian.PutUint32(buf[4:8], filter.EventMask[0])
	binary.NativeEndian.PutUint32(buf[8:12], filter.EventMask[1])
	binary.NativeEndian.PutUint16(buf[12:14], filter.OpCode)
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(solHCI), uintptr(hciFilter),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.events)
	buf := make([]byte, 1024)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := unix.Read(t.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			t.logger.Warn("hcisock read failed, stopping reader", slog.String("error", err.Error()))
			return
		}
		if n < 2 || buf[0] != hciEventPkt {
			continue // ACL/SCO data packets are not the core's concern here
		}

		evCode := buf[1]
		length := int(buf[2])
		if n < 3+length {
			t.logger.Warn("hcisock short event frame", slog.Int("have", n), slog.Int("want", 3+length))
			continue
		}
		params := make([]byte, length)
		copy(params, buf[3:3+length])

		select {
		case t.events <- hcicodec.Event{Code: hcicodec.EventCode(evCode), Params: params}:
		case <-t.done:
			return
		}
	}
}
