package gap_test

import (
	"testing"

	"github.com/dantte-lp/gogap/internal/gap"
	"github.com/dantte-lp/gogap/internal/hcicodec"
)

func TestInterrogatorBatchPopulatesCapabilitiesAndReachesAvailable(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	peer, _ := connectPeer(t, mgr, transport, cache, [6]byte{1, 1, 2, 2, 3, 3})

	if peer.Capability.Name != "peer-name" {
		t.Errorf("Capability.Name = %q, want %q", peer.Capability.Name, "peer-name")
	}
	if peer.ConnState != gap.ConnectionStateConnected {
		t.Errorf("ConnState = %v, want Connected", peer.ConnState)
	}
}

func TestInterrogatorIssuesBatchOnEntry(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{4, 4, 4, 4, 4, 4}
	devAddr := gap.DeviceAddress{Type: gap.AddressBREDRPublic, Bytes: addr}
	peer := cache.NewPeer(devAddr, true)

	if err := mgr.Connect(peer.Id, func(error, *gap.ConnectionHandle) {}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mgr.HandleEvent(connectionCompleteEvent(0x00, hcicodec.LinkTypeACL, 0x0010, addr))

	var sawName, sawVersion, sawFeatures bool
	for _, c := range transport.sentCommands() {
		switch c.OpCode {
		case hcicodec.OpRemoteNameRequest:
			sawName = true
		case hcicodec.OpReadRemoteVersionInformation:
			sawVersion = true
		case hcicodec.OpReadRemoteSupportedFeatures:
			sawFeatures = true
		}
	}
	if !sawName || !sawVersion || !sawFeatures {
		t.Errorf("interrogation batch incomplete: name=%v version=%v features=%v", sawName, sawVersion, sawFeatures)
	}
}

func TestInterrogatorFailedVersionReadDisconnects(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{8, 8, 8, 8, 8, 8}
	devAddr := gap.DeviceAddress{Type: gap.AddressBREDRPublic, Bytes: addr}
	peer := cache.NewPeer(devAddr, true)

	var connErr error
	if err := mgr.Connect(peer.Id, func(err error, _ *gap.ConnectionHandle) { connErr = err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	const handle = 0x0011
	mgr.HandleEvent(connectionCompleteEvent(0x00, hcicodec.LinkTypeACL, handle, addr))
	mgr.HandleEvent(remoteNameRequestCompleteEvent(0x00, addr, "peer"))
	mgr.HandleEvent(readRemoteVersionCompleteEvent(0x0E, handle)) // 0x0E: unspecified error
	mgr.HandleEvent(readRemoteSupportedFeaturesEvent(0x00, handle))

	if connErr == nil {
		t.Fatal("a failed interrogation read should have reported a connect error")
	}

	var sawDisconnect bool
	for _, c := range transport.sentCommands() {
		if c.OpCode == hcicodec.OpDisconnect {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Error("failed interrogation did not issue a Disconnect")
	}
}
