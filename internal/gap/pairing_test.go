package gap_test

import (
	"encoding/binary"
	"testing"

	"github.com/dantte-lp/gogap/internal/gap"
	"github.com/dantte-lp/gogap/internal/hcicodec"
)

func linkKeyRequestEvent(addr [6]byte) gap.Event {
	return gap.Event{Code: hcicodec.EvLinkKeyRequest, Params: append([]byte{}, addr[:]...)}
}

func linkKeyNotificationEvent(addr [6]byte, key [16]byte, keyType uint8) gap.Event {
	buf := make([]byte, 23)
	copy(buf[0:6], addr[:])
	copy(buf[6:22], key[:])
	buf[22] = keyType
	return gap.Event{Code: hcicodec.EvLinkKeyNotification, Params: buf}
}

func ioCapabilityRequestEvent(addr [6]byte) gap.Event {
	return gap.Event{Code: hcicodec.EvIOCapabilityRequest, Params: append([]byte{}, addr[:]...)}
}

func userConfirmationRequestEvent(addr [6]byte, numeric uint32) gap.Event {
	buf := make([]byte, 10)
	copy(buf[0:6], addr[:])
	binary.LittleEndian.PutUint32(buf[6:10], numeric)
	return gap.Event{Code: hcicodec.EvUserConfirmationRequest, Params: buf}
}

func simplePairingCompleteEvent(status uint8, addr [6]byte) gap.Event {
	buf := make([]byte, 7)
	buf[0] = status
	copy(buf[1:7], addr[:])
	return gap.Event{Code: hcicodec.EvSimplePairingComplete, Params: buf}
}

func encryptionChangeEvent(status uint8, handle uint16, enabled uint8) gap.Event {
	buf := make([]byte, 4)
	buf[0] = status
	binary.LittleEndian.PutUint16(buf[1:3], handle)
	buf[3] = enabled
	return gap.Event{Code: hcicodec.EvEncryptionChange, Params: buf}
}

func TestPairingLinkKeyRequestWithNoBondingRepliesNegative(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{2, 2, 2, 2, 2, 2}
	connectPeer(t, mgr, transport, cache, addr)

	mgr.HandleEvent(linkKeyRequestEvent(addr))

	cmd, ok := transport.lastSent()
	if !ok || cmd.OpCode != hcicodec.OpLinkKeyRequestNegativeReply {
		t.Fatalf("Link Key Request with no bonding data sent %+v, want OpLinkKeyRequestNegativeReply", cmd)
	}
}

func TestPairingLinkKeyRequestWithBondingRepliesPositive(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{6, 6, 6, 6, 6, 6}
	peer, _ := connectPeer(t, mgr, transport, cache, addr)

	devAddr := gap.DeviceAddress{Type: gap.AddressBREDRPublic, Bytes: addr}
	cache.AddBondedPeer(gap.BondingData{LinkKey: [16]byte{1}, KeyType: gap.LinkKeyAuthenticatedCombination192}, devAddr)
	_ = peer

	mgr.HandleEvent(linkKeyRequestEvent(addr))

	cmd, ok := transport.lastSent()
	if !ok || cmd.OpCode != hcicodec.OpLinkKeyRequestReply {
		t.Fatalf("Link Key Request with bonding data sent %+v, want OpLinkKeyRequestReply", cmd)
	}
}

func TestPairingLinkKeyNotificationBondsPeerForSecureSimplePairingKeys(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{3, 3, 3, 3, 3, 3}
	peer, _ := connectPeer(t, mgr, transport, cache, addr)

	mgr.HandleEvent(linkKeyNotificationEvent(addr, [16]byte{0xAA}, uint8(gap.LinkKeyAuthenticatedCombination192)))

	if !peer.Bonded {
		t.Error("peer was not bonded after a Secure Simple Pairing link key notification")
	}
	if peer.Bonding == nil || peer.Bonding.LinkKey != ([16]byte{0xAA}) {
		t.Error("peer's bonding data does not carry the notified link key")
	}
}

func TestPairingIOCapabilityRequestWithoutDelegateRepliesNegative(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	mgr.HandleEvent(ioCapabilityRequestEvent([6]byte{4, 4, 4, 4, 4, 4}))

	cmd, ok := transport.lastSent()
	if !ok || cmd.OpCode != hcicodec.OpIOCapabilityRequestNegReply {
		t.Fatalf("IO Capability Request without a delegate sent %+v, want negative reply", cmd)
	}
}

func TestPairingIOCapabilityRequestWithDelegateRepliesPositive(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()
	mgr.SetPairingDelegate(newFakePairingDelegate())

	mgr.HandleEvent(ioCapabilityRequestEvent([6]byte{5, 5, 5, 5, 5, 5}))

	cmd, ok := transport.lastSent()
	if !ok || cmd.OpCode != hcicodec.OpIOCapabilityRequestReply {
		t.Fatalf("IO Capability Request with a delegate sent %+v, want positive reply", cmd)
	}
}

func TestPairingUserConfirmationRequestAsksDelegate(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()
	mgr.SetPairingDelegate(newFakePairingDelegate())

	addr := [6]byte{7, 1, 7, 1, 7, 1}
	connectPeer(t, mgr, transport, cache, addr)

	mgr.HandleEvent(userConfirmationRequestEvent(addr, 123456))

	cmd, ok := transport.lastSent()
	if !ok || cmd.OpCode != hcicodec.OpUserConfirmationRequestReply {
		t.Fatalf("User Confirmation Request sent %+v, want a positive reply (delegate auto-confirms)", cmd)
	}
}

func TestPairingOpenL2capChannelUpgradesThenRetries(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	l2cap := newFakeL2cap()
	mgr := gap.NewConnectionManager(transport, cache, l2cap, nil)
	defer mgr.Close()
	mgr.SetPairingDelegate(newFakePairingDelegate())

	addr := [6]byte{9, 1, 9, 1, 9, 1}
	peer, _ := connectPeer(t, mgr, transport, cache, addr)

	var gotErr error
	var gotID uint16
	done := make(chan struct{}, 1)
	mgr.OpenL2capChannel(peer.Id, 0x0001, gap.SecurityRequirements{Authenticated: true}, gap.ChannelParameters{}, func(channelID uint16, err error) {
		gotID = channelID
		gotErr = err
		done <- struct{}{}
	})

	// The ACL FSM moves to Pairing and re-issues Authentication Requested;
	// a real controller emits the new Link Key Notification before Simple
	// Pairing Complete, so the Connection's LinkKey is set in time for the
	// pending channel open's security re-check.
	mgr.HandleEvent(linkKeyNotificationEvent(addr, [16]byte{0xBB}, uint8(gap.LinkKeyAuthenticatedCombination192)))
	mgr.HandleEvent(simplePairingCompleteEvent(0x00, addr))

	select {
	case <-done:
	default:
		t.Fatal("OpenL2capChannel callback was not invoked after a successful pairing round")
	}
	if gotErr != nil {
		t.Fatalf("OpenL2capChannel after successful pairing: %v", gotErr)
	}
	if gotID == 0 {
		t.Error("OpenL2capChannel did not report a channel id after the security upgrade")
	}
}

// TestPairingEncryptionOffOnEstablishedLinkDisconnects covers the
// review-flagged MIC-failure path: encryption dropping on a Connection
// that already finished pairing must tear the link down, not just
// record EncryptionOff and return.
func TestPairingEncryptionOffOnEstablishedLinkDisconnects(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	cache := newFakeCache()
	mgr := gap.NewConnectionManager(transport, cache, newFakeL2cap(), nil)
	defer mgr.Close()

	addr := [6]byte{2, 4, 2, 4, 2, 4}
	_, handle := connectPeer(t, mgr, transport, cache, addr)

	mgr.HandleEvent(encryptionChangeEvent(0x00, handle, 0x00))

	var sawDisconnect bool
	for _, c := range transport.sentCommands() {
		if c.OpCode == hcicodec.OpDisconnect {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Error("encryption dropping on an established link did not issue a Disconnect")
	}

	// Satisfy the Disconnect's in-flight bookkeeping so the deferred
	// Close() does not block waiting on a Disconnection Complete that
	// this test never simulates otherwise.
	mgr.HandleEvent(disconnectionCompleteEvent(0x00, handle, 0x13))
}
