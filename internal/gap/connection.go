package gap

import (
	"log/slog"
	"sync"
)

// ConnectCallback reports the outcome of an outbound or attached Connect
// request: err is nil on success, conn is valid only then.
type ConnectCallback func(err error, conn *ConnectionHandle)

// ChannelCallback reports the outcome of OpenL2capChannel: channelID is
// zero on failure.
type ChannelCallback func(channelID uint16, err error)

// DisconnectCallback reports that a Disconnect request reached its
// terminal Disconnection Complete.
type DisconnectCallback func()

// ConnectionHandle is the non-owning external reference to a Connection.
// Its validity is bound to the Connection Manager's lifetime and the
// underlying ACL staying up; holders never mutate state directly.
type ConnectionHandle struct {
	PeerId PeerId
	Handle uint16
}

// pendingChannelOpen is a caller waiting on OpenL2capChannel, possibly
// blocked behind an in-flight pairing upgrade.
type pendingChannelOpen struct {
	psm      uint16
	security SecurityRequirements
	params   ChannelParameters
	cb       ChannelCallback
	retried  bool
}

// Connection is the per-ACL-handle record the Connection Manager
// exclusively owns (§3 "Connection"). It is the coroutine-shaped state
// machine the design notes call for: a current-state field (state), a
// queue of dependent callers (pendingConnect/pendingChannelOpens), and
// event handlers (the conn_manager.go dispatch methods) that advance it.
//
// Grounded on internal/bfd/session.go's Session: atomic-free here because
// mutable fields are guarded by the Connection's own mu rather than
// per-field atomics, since Connection fields are read far less
// often than a BFD session's hot-path counters.
type Connection struct {
	mu sync.Mutex

	PeerId PeerId
	Addr   DeviceAddress
	Handle uint16
	State  ACLState
	Role   Role

	LinkKey           *BondingData
	Encryption        EncryptionState
	EncryptionKeySize uint8

	pendingConnect      []ConnectCallback
	pendingChannelOpens []pendingChannelOpen
	pendingDisconnect   []DisconnectCallback
	scoHandles          []uint16

	// interrogating is true from ACLInterrogating entry to exit; used to
	// hold channel opens per §4.2.5 "L2CAP channel opens are blocked
	// until interrogation completes".
	interrogating bool

	// disconnectReason records why the last Disconnect was requested, so
	// the Manager can decide whether to start the local-disconnect
	// cooldown (§4.2.4) once Disconnection Complete arrives.
	disconnectReason DisconnectReason

	logger *slog.Logger
}

func newConnection(peerID PeerId, addr DeviceAddress, logger *slog.Logger) *Connection {
	return &Connection{
		PeerId: peerID,
		Addr:   addr,
		State:  ACLNotConnected,
		logger: logger,
	}
}

// addPendingConnect enqueues a caller waiting for the ACL to reach
// ACLAvailable (or fail).
func (c *Connection) addPendingConnect(cb ConnectCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingConnect = append(c.pendingConnect, cb)
}

// takePendingConnect drains and returns the queued connect callbacks.
func (c *Connection) takePendingConnect() []ConnectCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	cbs := c.pendingConnect
	c.pendingConnect = nil
	return cbs
}

// addPendingChannelOpen enqueues a caller waiting on a security upgrade
// before its OpenL2capChannel can proceed, or blocked by an in-flight
// interrogation per §4.2.5.
func (c *Connection) addPendingChannelOpen(p pendingChannelOpen) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingChannelOpens = append(c.pendingChannelOpens, p)
}

func (c *Connection) takePendingChannelOpens() []pendingChannelOpen {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps := c.pendingChannelOpens
	c.pendingChannelOpens = nil
	return ps
}

func (c *Connection) setState(s ACLState) {
	c.mu.Lock()
	c.State = s
	c.mu.Unlock()
}

func (c *Connection) currentState() ACLState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State
}

// meetsSecurity reports whether the Connection's current link key
// satisfies req, used by OpenL2capChannel and Pair (§4.2.6).
func (c *Connection) meetsSecurity(req SecurityRequirements) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LinkKey.Meets(req)
}

func (c *Connection) handleRef() *ConnectionHandle {
	return &ConnectionHandle{PeerId: c.PeerId, Handle: c.Handle}
}
