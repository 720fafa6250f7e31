//go:build linux

package hcisock

import (
	"encoding/binary"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

func TestSockaddrHCIBytes(t *testing.T) {
	t.Parallel()

	sa := &sockaddrHCI{Family: afBluetooth, Dev: 2, Channel: hciChannelRaw}
	b := sa.bytes()
	if len(b) != 6 {
		t.Fatalf("len = %d, want 6", len(b))
	}
	if got := binary.NativeEndian.Uint16(b[0:2]); got != afBluetooth {
		t.Errorf("Family = %d, want %d", got, afBluetooth)
	}
	if got := binary.NativeEndian.Uint16(b[2:4]); got != sa.Dev {
		t.Errorf("Dev = %d, want %d", got, sa.Dev)
	}
}

// newSocketpairTransport builds a Transport whose fd is one end of a
// unix socketpair, so Send/readLoop framing can be exercised without a
// real AF_BLUETOOTH socket.
func newSocketpairTransport(t *testing.T) (*Transport, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	tr := &Transport{fd: fds[0], events: make(chan hcicodec.Event, 8), done: make(chan struct{})}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return tr, fds[1]
}

func TestTransportSendFramesH4Header(t *testing.T) {
	t.Parallel()

	tr, peer := newSocketpairTransport(t)

	cmd := hcicodec.Command{OpCode: hcicodec.OpInquiry, Params: []byte{0x33, 0x8B, 0x9E, 0x08, 0x00}}
	if err := tr.Send(cmd); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 16)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("reading framed command: %v", err)
	}
	if n != 4+len(cmd.Params) {
		t.Fatalf("framed length = %d, want %d", n, 4+len(cmd.Params))
	}
	if buf[0] != hciCommandPkt {
		t.Errorf("packet type byte = 0x%02x, want HCI_COMMAND_PKT", buf[0])
	}
	gotOp := uint16(buf[1]) | uint16(buf[2])<<8
	if gotOp != uint16(hcicodec.OpInquiry) {
		t.Errorf("opcode = 0x%04x, want 0x%04x", gotOp, hcicodec.OpInquiry)
	}
	if buf[3] != byte(len(cmd.Params)) {
		t.Errorf("length byte = %d, want %d", buf[3], len(cmd.Params))
	}
}

func TestTransportReadLoopDecodesEventFrame(t *testing.T) {
	t.Parallel()

	tr, peer := newSocketpairTransport(t)
	go tr.readLoop()

	frame := []byte{hciEventPkt, byte(hcicodec.EvInquiryComplete), 0x01, 0x00}
	if _, err := unix.Write(peer, frame); err != nil {
		t.Fatalf("writing synthetic event frame: %v", err)
	}

	select {
	case ev := <-tr.Events():
		if ev.Code != hcicodec.EvInquiryComplete {
			t.Errorf("Code = %v, want EvInquiryComplete", ev.Code)
		}
		if len(ev.Params) != 1 || ev.Params[0] != 0x00 {
			t.Errorf("Params = %v, want [0x00]", ev.Params)
		}
	case <-time.After(time.Second):
		t.Fatal("readLoop did not deliver the decoded event")
	}

	close(tr.done)
}
