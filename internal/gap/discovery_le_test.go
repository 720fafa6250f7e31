package gap_test

import (
	"testing"
	"time"

	"github.com/dantte-lp/gogap/internal/gap"
	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// buildLEAdvertisingReport encodes a single-report LE Advertising Report
// meta-event payload matching hcicodec.DecodeLEAdvertisingReport's wire
// layout.
func buildLEAdvertisingReport(eventType, addrType uint8, addr [6]byte, data []byte, rssi int8) gap.Event {
	buf := []byte{0x02, 0x01, eventType, addrType}
	buf = append(buf, addr[:]...)
	buf = append(buf, uint8(len(data)))
	buf = append(buf, data...)
	buf = append(buf, byte(rssi))
	return gap.Event{Code: hcicodec.EvLEMeta, Params: buf}
}

func nameAdvertisingData(name string) []byte {
	return append([]byte{byte(len(name) + 1), 0x09}, name...)
}

func TestLEDiscoveryManagerStartDiscoveryEnablesScan(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	sess := mgr.StartDiscovery(gap.LEScanFilter{}, func(gap.LEAdvertisement) {})
	defer sess.Destroy()

	cmds := transport.sentCommands()
	var sawParams, sawEnable bool
	for _, c := range cmds {
		if c.OpCode == hcicodec.OpLESetScanParameters {
			sawParams = true
		}
		if c.OpCode == hcicodec.OpLESetScanEnable {
			sawEnable = true
		}
	}
	if !sawParams || !sawEnable {
		t.Fatalf("StartDiscovery did not set scan parameters and enable scanning: %+v", cmds)
	}
}

func TestLEDiscoveryManagerActiveSessionReceivesAdvertisement(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	received := make(chan gap.LEAdvertisement, 1)
	sess := mgr.StartDiscovery(gap.LEScanFilter{}, func(adv gap.LEAdvertisement) { received <- adv })
	defer sess.Destroy()

	addr := [6]byte{1, 2, 3, 4, 5, 6}
	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, addr, nameAdvertisingData("widget"), -40))

	select {
	case adv := <-received:
		if adv.LocalName != "widget" {
			t.Errorf("LocalName = %q, want %q", adv.LocalName, "widget")
		}
		if adv.RSSI != -40 {
			t.Errorf("RSSI = %d, want -40", adv.RSSI)
		}
		want := gap.DeviceAddress{Type: gap.AddressLEPublic, Bytes: addr}
		if !adv.Addr.Equal(want) {
			t.Errorf("Addr = %v, want %v", adv.Addr, want)
		}
	case <-time.After(time.Second):
		t.Fatal("advertisement was never delivered to the active session")
	}

	if _, ok := cache.FindByAddress(gap.DeviceAddress{Type: gap.AddressLEPublic, Bytes: addr}); !ok {
		t.Error("active discovery should have created a Peer Cache entry")
	}
}

func TestLEDiscoveryManagerBackgroundScanIgnoresUnknownPeer(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	received := make(chan gap.LEAdvertisement, 1)
	sess := mgr.StartBackgroundScan(gap.LEScanFilter{}, func(adv gap.LEAdvertisement) { received <- adv })
	defer sess.Destroy()

	addr := [6]byte{9, 9, 9, 9, 9, 9}
	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, addr, nil, -50))

	select {
	case adv := <-received:
		t.Fatalf("background scan delivered an advertisement for an unknown peer: %+v", adv)
	case <-time.After(50 * time.Millisecond):
		// expected: background scan never creates new cache entries.
	}

	if _, ok := cache.FindByAddress(gap.DeviceAddress{Type: gap.AddressLEPublic, Bytes: addr}); ok {
		t.Error("background scan should not have created a Peer Cache entry for an unknown peer")
	}
}

// TestLEDiscoveryManagerBackgroundScanIgnoresNonConnectablePeer covers the
// review-flagged gap: a cached-but-non-connectable Peer (e.g. observed
// only via BR/EDR discovery) must not be delivered to background scan
// sessions, only a cached *connectable* Peer qualifies.
func TestLEDiscoveryManagerBackgroundScanIgnoresNonConnectablePeer(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	addr := [6]byte{8, 8, 8, 8, 8, 8}
	devAddr := gap.DeviceAddress{Type: gap.AddressLEPublic, Bytes: addr}
	cache.NewPeer(devAddr, false)

	received := make(chan gap.LEAdvertisement, 1)
	sess := mgr.StartBackgroundScan(gap.LEScanFilter{}, func(adv gap.LEAdvertisement) { received <- adv })
	defer sess.Destroy()

	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, addr, nil, -50))

	select {
	case adv := <-received:
		t.Fatalf("background scan delivered an advertisement for a non-connectable cached peer: %+v", adv)
	case <-time.After(50 * time.Millisecond):
		// expected: background scan only delivers for connectable cached peers.
	}
}

func TestLEDiscoveryManagerDeduplicatesWithinPeriod(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	received := make(chan gap.LEAdvertisement, 4)
	sess := mgr.StartDiscovery(gap.LEScanFilter{}, func(adv gap.LEAdvertisement) { received <- adv })
	defer sess.Destroy()

	addr := [6]byte{1, 1, 1, 1, 1, 1}
	ev := buildLEAdvertisingReport(0x00, 0x00, addr, nil, -60)
	mgr.HandleEvent(ev)
	mgr.HandleEvent(ev)

	if got := len(received); got != 1 {
		t.Fatalf("got %d deliveries for two identical reports in one period, want 1", got)
	}
}

func TestLEScanFilterMatchesRSSIAndName(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewLEDiscoveryManager(transport, cache, nil, gap.WithScanPeriod(time.Hour))

	filter := gap.LEScanFilter{NameSubstring: "target", HasMinRSSI: true, MinRSSI: -50}
	received := make(chan gap.LEAdvertisement, 2)
	sess := mgr.StartDiscovery(filter, func(adv gap.LEAdvertisement) { received <- adv })
	defer sess.Destroy()

	// Below RSSI threshold: should be filtered out even though the name matches.
	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, [6]byte{2, 2, 2, 2, 2, 2}, nameAdvertisingData("target-device"), -80))
	// Name doesn't match: filtered out.
	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, [6]byte{3, 3, 3, 3, 3, 3}, nameAdvertisingData("other"), -30))
	// Matches both: delivered.
	mgr.HandleEvent(buildLEAdvertisingReport(0x00, 0x00, [6]byte{4, 4, 4, 4, 4, 4}, nameAdvertisingData("target-device"), -30))

	select {
	case adv := <-received:
		if adv.LocalName != "target-device" {
			t.Errorf("LocalName = %q, want %q", adv.LocalName, "target-device")
		}
	case <-time.After(time.Second):
		t.Fatal("matching advertisement was never delivered")
	}

	select {
	case adv := <-received:
		t.Fatalf("a second advertisement was delivered unexpectedly: %+v", adv)
	case <-time.After(50 * time.Millisecond):
	}
}
