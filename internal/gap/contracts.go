package gap

import (
	"context"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// Command and Event re-export the wire types the core exchanges with its
// Transport, so callers outside this package never need to import
// hcicodec directly just to hold a handle on one.
type (
	Command = hcicodec.Command
	Event   = hcicodec.Event
)

// Transport is the external HCI transport contract: a bidirectional
// channel for sending commands and receiving events. The core never
// assumes a concrete transport; cmd/gapd wires a real one (internal/hcisock)
// in behind this interface.
type Transport interface {
	// Send transmits a single HCI command. The resulting Command Complete
	// or Command Status event arrives later on Events().
	Send(cmd Command) error

	// Events returns the channel of inbound HCI events. Closed when the
	// transport is shut down.
	Events() <-chan Event
}

// L2capOpener is the external L2CAP layer contract.
type L2capOpener interface {
	// OpenOutboundChannel opens a logical channel over the ACL
	// identified by handle. The callback receives a non-zero channel id
	// on success or 0 on failure.
	OpenOutboundChannel(handle uint16, psm uint16, params ChannelParameters, cb func(channelID uint16, err error))
}

// ChannelParameters configures an L2CAP channel open.
type ChannelParameters struct {
	Mode         L2capMode
	MaxRxSDUSize uint16
}

// L2capMode selects the L2CAP retransmission mode.
type L2capMode uint8

const (
	L2capModeBasic L2capMode = iota
	L2capModeEnhancedRetransmission
)

// SdpClient is the external Service Discovery Protocol client contract.
type SdpClient interface {
	// ServiceSearchAttribute runs a ServiceSearchAttributeRequest for the
	// given service class UUID and attribute id set over an already-open
	// L2CAP channel, returning the parsed attribute map.
	ServiceSearchAttribute(ctx context.Context, channelID uint16, uuid string, attrIDs []uint16) (map[uint16][]byte, error)
}

// CacheObserver receives Peer Cache mutation notifications.
type CacheObserver interface {
	OnPeerUpdated(p *Peer)
	OnPeerBonded(p *Peer)
}

// PeerCache is the external identity store contract.
type PeerCache interface {
	NewPeer(addr DeviceAddress, connectable bool) *Peer
	FindByAddress(addr DeviceAddress) (*Peer, bool)
	FindById(id PeerId) (*Peer, bool)
	AddBondedPeer(data BondingData, addr DeviceAddress) bool
	RemoveDisconnectedPeer(id PeerId) bool
	AllConnectable() []*Peer
	Observe(o CacheObserver)
}

// PairingMethod classifies how a pairing value is exchanged with the
// user, matching the IO-capability-derived association model.
type PairingMethod uint8

const (
	PairingMethodNumericComparison PairingMethod = iota
	PairingMethodPasskeyDisplay
	PairingMethodPasskeyEntry
)

// PairingDelegate is the external, user-provided pairing UI contract.
type PairingDelegate interface {
	// IOCapability reports the local IO capability byte used to build
	// the authentication-requirements response.
	IOCapability() IOCapability

	// ConfirmPairing asks the user to confirm a Numeric Comparison.
	ConfirmPairing(peer PeerId, cb func(confirmed bool))

	// DisplayPasskey notifies the user of a peer-chosen passkey
	// (Passkey Display / Notification path).
	DisplayPasskey(peer PeerId, passkey uint32, method PairingMethod, confirmCb func(confirmed bool))

	// RequestPasskey asks the user to type in a 6-digit passkey
	// (Passkey Entry, input side). A negative response value means the
	// user rejected the request.
	RequestPasskey(peer PeerId, cb func(passkey int32))

	// CompletePairing reports the terminal pairing status.
	CompletePairing(peer PeerId, err error)
}

// IOCapability is the local device's input/output capability, used to
// derive the authentication-requirements byte sent in an IO Capability
// Request Reply.
type IOCapability uint8

const (
	IOCapabilityDisplayOnly IOCapability = iota
	IOCapabilityDisplayYesNo
	IOCapabilityKeyboardOnly
	IOCapabilityNoInputNoOutput
)

// HasDisplayOrKeyboard reports whether this capability can do something
// other than NoInputNoOutput, used to choose between MITM+General-Bonding
// and General-Bonding-only authentication requirements.
func (c IOCapability) HasDisplayOrKeyboard() bool {
	return c != IOCapabilityNoInputNoOutput
}
