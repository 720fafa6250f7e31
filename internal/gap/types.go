package gap

import (
	"fmt"
	"strings"
	"time"
)

// -------------------------------------------------------------------------
// DeviceAddress
// -------------------------------------------------------------------------

// AddressType distinguishes the address spaces a DeviceAddress can belong
// to. Two addresses only compare equal when both Type and Bytes match.
type AddressType uint8

const (
	AddressBREDRPublic AddressType = iota
	AddressLEPublic
	AddressLERandom
	AddressLERandomResolvable
	AddressLEAnonymous
)

func (t AddressType) String() string {
	switch t {
	case AddressBREDRPublic:
		return "bredr-public"
	case AddressLEPublic:
		return "le-public"
	case AddressLERandom:
		return "le-random"
	case AddressLERandomResolvable:
		return "le-random-resolvable"
	case AddressLEAnonymous:
		return "le-anonymous"
	default:
		return fmt.Sprintf("address-type(%d)", uint8(t))
	}
}

// IsLE reports whether the address type belongs to the LE address space.
func (t AddressType) IsLE() bool {
	return t != AddressBREDRPublic
}

// DeviceAddress is a typed 48-bit Bluetooth device address. Equality
// requires both Type and Bytes to match: a BR/EDR public address and an
// LE public address with identical bytes are distinct keys that may
// still alias the same physical peer (see the Dual-Mode Upgrade in the
// LE Discovery Manager).
type DeviceAddress struct {
	Type  AddressType
	Bytes [6]byte
}

// Equal reports whether two addresses are identical in type and bytes.
func (a DeviceAddress) Equal(b DeviceAddress) bool {
	return a.Type == b.Type && a.Bytes == b.Bytes
}

// SameBytes reports whether two addresses share the same 48-bit value,
// ignoring Type. Used by the Dual-Mode Upgrade to find aliasing peers.
func (a DeviceAddress) SameBytes(b DeviceAddress) bool {
	return a.Bytes == b.Bytes
}

func (a DeviceAddress) String() string {
	parts := make([]string, len(a.Bytes))
	for i := len(a.Bytes) - 1; i >= 0; i-- {
		parts[len(a.Bytes)-1-i] = fmt.Sprintf("%02X", a.Bytes[i])
	}
	return strings.Join(parts, ":") + "/" + a.Type.String()
}

// ParseDeviceAddress parses the String() format ("AA:BB:CC:DD:EE:FF/type",
// type one of AddressType.String()'s values; the "/type" suffix may be
// omitted, defaulting to AddressBREDRPublic). Used by the control
// protocol and CLI to accept a human-typed address.
func ParseDeviceAddress(s string) (DeviceAddress, error) {
	hexPart := s
	typ := AddressBREDRPublic
	if i := strings.IndexByte(s, '/'); i >= 0 {
		hexPart = s[:i]
		t, err := parseAddressType(s[i+1:])
		if err != nil {
			return DeviceAddress{}, err
		}
		typ = t
	}

	octets := strings.Split(hexPart, ":")
	if len(octets) != 6 {
		return DeviceAddress{}, fmt.Errorf("gap: parse device address %q: want 6 colon-separated octets", s)
	}

	var addr DeviceAddress
	addr.Type = typ
	for i, oct := range octets {
		var b uint8
		if _, err := fmt.Sscanf(oct, "%02X", &b); err != nil {
			return DeviceAddress{}, fmt.Errorf("gap: parse device address %q: octet %q: %w", s, oct, err)
		}
		addr.Bytes[len(octets)-1-i] = b
	}
	return addr, nil
}

func parseAddressType(s string) (AddressType, error) {
	switch s {
	case "bredr-public":
		return AddressBREDRPublic, nil
	case "le-public":
		return AddressLEPublic, nil
	case "le-random":
		return AddressLERandom, nil
	case "le-random-resolvable":
		return AddressLERandomResolvable, nil
	case "le-anonymous":
		return AddressLEAnonymous, nil
	default:
		return 0, fmt.Errorf("gap: parse device address: unknown address type %q", s)
	}
}

// -------------------------------------------------------------------------
// PeerId
// -------------------------------------------------------------------------

// PeerId is an opaque stable identifier minted by the Peer Cache. A
// PeerId maps to exactly one Peer record for its lifetime.
type PeerId uint64

func (id PeerId) String() string {
	return fmt.Sprintf("peer-%016x", uint64(id))
}

// -------------------------------------------------------------------------
// Peer
// -------------------------------------------------------------------------

// Technology classifies which radio(s) a Peer has been observed on.
type Technology uint8

const (
	TechnologyClassic Technology = iota
	TechnologyLowEnergy
	TechnologyDualMode
)

func (t Technology) String() string {
	switch t {
	case TechnologyClassic:
		return "classic"
	case TechnologyLowEnergy:
		return "low-energy"
	case TechnologyDualMode:
		return "dual-mode"
	default:
		return fmt.Sprintf("technology(%d)", uint8(t))
	}
}

// ConnectionState is the Peer's public, coarse-grained connection state,
// derived from the finer-grained ACL lifecycle FSM state (see aclfsm.go).
type ConnectionState uint8

const (
	ConnectionStateNotConnected ConnectionState = iota
	ConnectionStateInitializing
	ConnectionStateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNotConnected:
		return "not-connected"
	case ConnectionStateInitializing:
		return "initializing"
	case ConnectionStateConnected:
		return "connected"
	default:
		return fmt.Sprintf("connection-state(%d)", uint8(s))
	}
}

// LinkKeyType identifies how a link key was generated. Only the Secure
// Simple Pairing variants cause a Peer to become bonded; see
// pairing.go's link-key-notification handler.
type LinkKeyType uint8

const (
	LinkKeyCombination LinkKeyType = iota
	LinkKeyLocalUnit
	LinkKeyRemoteUnit
	LinkKeyDebugCombination
	LinkKeyUnauthenticatedCombination192
	LinkKeyAuthenticatedCombination192
	LinkKeyChangedCombination
	LinkKeyUnauthenticatedCombination256
	LinkKeyAuthenticatedCombination256
)

// IsSecureSimplePairing reports whether the key type was produced by a
// Secure Simple Pairing exchange. Legacy Combination Keys and the
// Changed Combination Key notification are excluded: a peer only
// becomes bonded from an SSP key.
func (k LinkKeyType) IsSecureSimplePairing() bool {
	switch k {
	case LinkKeyUnauthenticatedCombination192, LinkKeyAuthenticatedCombination192,
		LinkKeyUnauthenticatedCombination256, LinkKeyAuthenticatedCombination256:
		return true
	default:
		return false
	}
}

// BondingData is the retained link key and its security properties.
type BondingData struct {
	LinkKey           [16]byte
	KeyType           LinkKeyType
	Authenticated     bool
	SecureConnections bool
	KeySize           uint8
}

// SecurityLevel meets reports whether this bonding data satisfies the
// given SecurityRequirements (used by OpenL2capChannel and Pair).
func (b *BondingData) Meets(req SecurityRequirements) bool {
	if b == nil {
		return !req.Authenticated && !req.SecureConnections && req.MinKeySize == 0
	}
	if req.Authenticated && !b.Authenticated {
		return false
	}
	if req.SecureConnections && !b.SecureConnections {
		return false
	}
	if b.KeySize < req.MinKeySize {
		return false
	}
	return true
}

// SecurityRequirements describes the minimum link security an operation
// needs, used by OpenL2capChannel and Pair.
type SecurityRequirements struct {
	Authenticated     bool
	SecureConnections bool
	MinKeySize        uint8
}

// CapabilitySnapshot is the set of fields the BR/EDR Interrogator
// populates on a Peer.
type CapabilitySnapshot struct {
	HCIVersion      uint8
	Manufacturer    uint16
	LMPSubversion   uint16
	FeaturePages    map[uint8][8]byte
	MaxFeaturePage  uint8
	Name            string
	NameSource      string
	ServiceUUIDs    map[string]struct{}
	ServiceRecords  map[string]map[uint16][]byte // serviceUUID -> attrID -> raw attribute value
}

func newCapabilitySnapshot() CapabilitySnapshot {
	return CapabilitySnapshot{
		FeaturePages:   make(map[uint8][8]byte),
		ServiceUUIDs:   make(map[string]struct{}),
		ServiceRecords: make(map[string]map[uint16][]byte),
	}
}

// Peer is the identity + capability record owned by the Peer Cache.
//
// Invariants (enforced by internal/peercache, consumed read-only by
// internal/gap): NotConnected -> Initializing only when interrogation
// starts; Initializing -> Connected only once pairing (if required) is
// complete and the L2CAP link is usable; bonded is only ever set from a
// Secure Simple Pairing link key.
type Peer struct {
	Id         PeerId
	Addresses  []DeviceAddress
	Technology Technology
	Temporary  bool
	Bonded     bool
	Bonding    *BondingData
	ConnState  ConnectionState
	Capability CapabilitySnapshot
	Connectable bool
	LastSeen   time.Time
}

// NewPeer constructs a fresh, temporary Peer record for the given
// address. Called only by the Peer Cache's NewPeer API.
func NewPeer(id PeerId, addr DeviceAddress, connectable bool) *Peer {
	tech := TechnologyClassic
	if addr.Type.IsLE() {
		tech = TechnologyLowEnergy
	}
	return &Peer{
		Id:          id,
		Addresses:   []DeviceAddress{addr},
		Technology:  tech,
		Temporary:   true,
		ConnState:   ConnectionStateNotConnected,
		Capability:  newCapabilitySnapshot(),
		Connectable: connectable,
	}
}

// HasAddress reports whether the Peer is known under the given address.
func (p *Peer) HasAddress(addr DeviceAddress) bool {
	for _, a := range p.Addresses {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

// PeerSnapshot is a read-only view of a Peer for external listing APIs,
// holding no references to mutable state.
type PeerSnapshot struct {
	Id         PeerId
	Addresses  []DeviceAddress
	Technology Technology
	Temporary  bool
	Bonded     bool
	ConnState  ConnectionState
	Name       string
}

// Snapshot takes a point-in-time, reference-free copy of the Peer.
func (p *Peer) Snapshot() PeerSnapshot {
	addrs := make([]DeviceAddress, len(p.Addresses))
	copy(addrs, p.Addresses)
	return PeerSnapshot{
		Id:         p.Id,
		Addresses:  addrs,
		Technology: p.Technology,
		Temporary:  p.Temporary,
		Bonded:     p.Bonded,
		ConnState:  p.ConnState,
		Name:       p.Capability.Name,
	}
}

// -------------------------------------------------------------------------
// Connection
// -------------------------------------------------------------------------

// Role is the ACL link role, mutable on a role-change event.
type Role uint8

const (
	RoleCentral Role = iota
	RolePeripheral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// EncryptionState is the link's current encryption status.
type EncryptionState uint8

const (
	EncryptionOff EncryptionState = iota
	EncryptionOn
)

// DisconnectReason classifies why a Disconnect was requested; ApiRequest
// is the only reason that starts the local-disconnect cooldown.
type DisconnectReason uint8

const (
	DisconnectReasonApiRequest DisconnectReason = iota
	DisconnectReasonPairingFailed
	DisconnectReasonError
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectReasonApiRequest:
		return "api-request"
	case DisconnectReasonPairingFailed:
		return "pairing-failed"
	case DisconnectReasonError:
		return "error"
	default:
		return fmt.Sprintf("disconnect-reason(%d)", uint8(r))
	}
}
