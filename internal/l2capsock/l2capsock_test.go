//go:build linux

package l2capsock

import (
	"log/slog"
	"testing"

	"github.com/dantte-lp/gogap/internal/gap"
)

func TestSockaddrL2Bytes(t *testing.T) {
	t.Parallel()

	sa := &sockaddrL2{Family: 31, PSM: 0x1001, Addr: [6]byte{1, 2, 3, 4, 5, 6}, CID: 0, AddrType: 0}
	b := sa.bytes()
	if len(b) != 14 {
		t.Fatalf("len = %d, want 14", len(b))
	}
	if b[4] != 1 || b[9] != 6 {
		t.Errorf("bdaddr bytes not copied in place: %v", b[4:10])
	}
}

func TestOpenOutboundChannelUnknownHandle(t *testing.T) {
	t.Parallel()

	o := New(func(uint16) (gap.DeviceAddress, bool) { return gap.DeviceAddress{}, false }, slog.New(slog.DiscardHandler))

	done := make(chan error, 1)
	o.OpenOutboundChannel(7, 1, gap.ChannelParameters{}, func(_ uint16, err error) {
		done <- err
	})

	if err := <-done; err == nil {
		t.Fatal("expected error for unresolved handle")
	}
}
