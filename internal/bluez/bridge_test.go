package bluez_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dantte-lp/gogap/internal/bluez"
	"github.com/dantte-lp/gogap/internal/gap"
)

// A disabled bridge (empty adapter path) must tolerate every
// gap.CacheObserver call and SetConnectable without touching a bus
// connection, so daemon wiring can construct one unconditionally even
// when BlueZ integration is turned off.
func TestDisabledBridgeIsNoop(t *testing.T) {
	t.Parallel()

	b, err := bluez.NewBridge("", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	addr, err := gap.ParseDeviceAddress("AA:BB:CC:DD:EE:FF/bredr-public")
	if err != nil {
		t.Fatalf("ParseDeviceAddress: %v", err)
	}
	p := gap.NewPeer(1, addr, true)

	b.OnPeerUpdated(p)
	b.OnPeerBonded(p)

	if err := b.SetConnectable(context.Background(), true); err != nil {
		t.Errorf("SetConnectable: %v", err)
	}
}

func TestNewBridgeRejectsNothing(t *testing.T) {
	t.Parallel()

	// A nil logger must be tolerated (the constructor falls back to
	// slog.Default()).
	b, err := bluez.NewBridge("", nil)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
