package gap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// Sentinel errors specific to the Connection Manager's registry.
var (
	ErrConnectionNotFound  = errors.New("gap: connection not found")
	ErrDuplicateConnection = errors.New("gap: connection already exists for peer")
)

// ManagerOption configures a ConnectionManager at construction time.
type ManagerOption func(*ConnectionManager)

// WithManagerMetrics installs a metrics sink. Reports are best-effort and
// never block the dispatcher.
func WithManagerMetrics(m MetricsReporter) ManagerOption {
	return func(c *ConnectionManager) { c.metrics = m }
}

// WithCreateConnectionTimeout overrides the default per-attempt outbound
// Create Connection timeout.
func WithCreateConnectionTimeout(d time.Duration) ManagerOption {
	return func(c *ConnectionManager) { c.createConnTimeout = d }
}

// WithDisconnectCooldown overrides the default local-disconnect cooldown
// duration (§4.2.4).
func WithDisconnectCooldown(d time.Duration) ManagerOption {
	return func(c *ConnectionManager) { c.cooldown = d }
}

// WithSdpClient installs the SDP client used to dispatch registered
// service searches once interrogation completes. Without one, registered
// searches are accepted but never run.
func WithSdpClient(c SdpClient) ManagerOption {
	return func(m *ConnectionManager) { m.sdp = c }
}

// sdpQueryTimeout bounds a single ServiceSearchAttribute round trip.
const sdpQueryTimeout = 10 * time.Second

// MetricsReporter is the metrics sink contract the Connection Manager
// reports into; internal/metrics.Collector implements it.
type MetricsReporter interface {
	RegisterConnection(addr string)
	UnregisterConnection(addr string)
	RecordACLTransition(from, to string)
	IncPairingAttempts()
	IncPairingFailures()
}

const (
	defaultCreateConnTimeout = 10 * time.Second
	defaultCooldown          = 2 * time.Second
)

// connEntry pairs a Connection with the state an in-flight outbound
// attempt needs (cancel timer, etc.).
type connEntry struct {
	conn        *Connection
	connectTime time.Time
	cancelTimer *time.Timer

	// inbound is true when this entry was created from handleConnectionRequest
	// (peer-initiated), false when created from Connect (locally initiated).
	// Used only to seed Role on Connection Complete; a later Role Change
	// event always overrides it.
	inbound bool
}

// ConnectionManager is the BR/EDR Connection Manager (§4.2): it accepts
// and initiates ACL links, drives interrogation, arbitrates pairing,
// opens L2CAP channels under security requirements, and dispatches
// service searches.
//
// Grounded on internal/bfd/manager.go's Manager: the two-tier demux
// (byHandle / byAddr) mirrors the sibling's sessions/sessionsByPeer dual
// map under one sync.RWMutex, and Close()'s drain-then-cancel sequencing
// mirrors DrainAllSessions()+Close().
type ConnectionManager struct {
	mu sync.RWMutex

	byHandle map[uint16]*connEntry
	byAddr   map[DeviceAddress]*connEntry

	// cooldown tracks addresses currently rejected per §4.2.4, set by a
	// local Disconnect(reason=ApiRequest) and cleared once expired.
	cooldownUntil map[DeviceAddress]time.Time

	// inboundInFlight tracks addresses with an inbound Connection Request
	// already accepted and awaiting Connection Complete, to reject
	// duplicate inbound requests per §4.2.3.
	inboundInFlight map[DeviceAddress]struct{}

	delegate  atomic.Pointer[PairingDelegate]
	cache     PeerCache
	transport Transport
	l2cap     L2capOpener
	sdp       SdpClient

	searches *searchRegistry

	interrogations interrogationRegistry

	scoPending scoPendingRegistry
	scoAccept  scoAcceptRegistry

	connectable atomic.Bool

	createConnTimeout time.Duration
	cooldown          time.Duration

	metrics MetricsReporter
	logger  *slog.Logger

	closed       atomic.Bool
	inFlightOps  sync.WaitGroup
	stateChanges chan PeerSnapshot
}

// scoPendingRegistry tracks OpenScoConnection callbacks awaiting a
// Synchronous Connection Complete keyed by ACL handle.
type scoPendingRegistry struct {
	mu        sync.Mutex
	callbacks map[uint16]func(handle uint16, err error)
}

func (r *scoPendingRegistry) register(aclHandle uint16, cb func(handle uint16, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.callbacks == nil {
		r.callbacks = make(map[uint16]func(handle uint16, err error))
	}
	r.callbacks[aclHandle] = cb
}

func (r *scoPendingRegistry) take(aclHandle uint16) (func(handle uint16, err error), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.callbacks[aclHandle]
	if ok {
		delete(r.callbacks, aclHandle)
	}
	return cb, ok
}

// scoAcceptRegistry tracks peers whose next inbound synchronous
// connection request should be accepted (AcceptScoConnection).
type scoAcceptRegistry struct {
	mu    sync.Mutex
	peers map[PeerId]struct{}
}

// NewConnectionManager creates a Connection Manager driven by transport
// for HCI I/O and cache for Peer identity/bonding data.
func NewConnectionManager(transport Transport, cache PeerCache, l2cap L2capOpener, logger *slog.Logger, opts ...ManagerOption) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &ConnectionManager{
		byHandle:          make(map[uint16]*connEntry),
		byAddr:            make(map[DeviceAddress]*connEntry),
		cooldownUntil:     make(map[DeviceAddress]time.Time),
		inboundInFlight:   make(map[DeviceAddress]struct{}),
		cache:             cache,
		transport:         transport,
		l2cap:             l2cap,
		searches:          newSearchRegistry(),
		scoAccept:         scoAcceptRegistry{peers: make(map[PeerId]struct{})},
		createConnTimeout: defaultCreateConnTimeout,
		cooldown:          defaultCooldown,
		logger:            logger,
		stateChanges:      make(chan PeerSnapshot, 64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StateChanges returns the channel of Peer connection-state transitions,
// for observers such as the gobgp-style downstream consumers the sibling
// project feeds its StateChange channel into.
func (m *ConnectionManager) StateChanges() <-chan PeerSnapshot {
	return m.stateChanges
}

func (m *ConnectionManager) emitStateChange(p *Peer) {
	snap := p.Snapshot()
	select {
	case m.stateChanges <- snap:
	default:
		m.logger.Warn("state change channel full, dropping", slog.String("peer", p.Id.String()))
	}
}

// -------------------------------------------------------------------------
// Public contract — §4.2.1
// -------------------------------------------------------------------------

// SetConnectable enables or disables page scan (inbound ACL
// connectability).
func (m *ConnectionManager) SetConnectable(ctx context.Context, enable bool, cb func(error)) {
	m.connectable.Store(enable)
	mask := uint8(0)
	if enable {
		mask = 0x02 // page scan enable bit
	}
	err := m.transport.Send(hcicodec.WriteScanEnable(mask))
	if cb != nil {
		cb(err)
	}
}

// SetPairingDelegate installs (or clears, with nil) the Pairing
// Delegate. While absent, IO Capability Requests are negatively replied
// and peer-initiated pairing is declined. Installation is a single
// atomically replaced handle (§9 "Global mutable state").
func (m *ConnectionManager) SetPairingDelegate(d PairingDelegate) {
	if d == nil {
		m.delegate.Store(nil)
		return
	}
	m.delegate.Store(&d)
}

func (m *ConnectionManager) pairingDelegate() PairingDelegate {
	p := m.delegate.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Connect initiates an outbound ACL to a known LE-or-dual-mode... in
// this BR/EDR manager, to a known Classic or DualMode peer. Returns
// ErrPeerNotFound or ErrNotSupported synchronously (rejected); otherwise
// the request is accepted and cb fires asynchronously.
func (m *ConnectionManager) Connect(peerID PeerId, cb ConnectCallback) error {
	peer, ok := m.cache.FindById(peerID)
	if !ok {
		return ErrPeerNotFound
	}
	if peer.Technology == TechnologyLowEnergy {
		return ErrNotSupported
	}

	addr := peer.Addresses[0]
	for _, a := range peer.Addresses {
		if !a.Type.IsLE() {
			addr = a
			break
		}
	}

	m.mu.Lock()
	if entry, exists := m.byAddr[addr]; exists {
		// Attach to the in-flight procedure instead of issuing a
		// duplicate CreateConnection (§4.2.3).
		entry.conn.addPendingConnect(cb)
		m.mu.Unlock()
		return nil
	}

	conn := newConnection(peerID, addr, m.logger)
	entry := &connEntry{conn: conn, connectTime: time.Now()}
	conn.addPendingConnect(cb)
	m.byAddr[addr] = entry
	m.mu.Unlock()

	res := ApplyACLEvent(ACLNotConnected, ACLEventOutboundCreateIssued)
	conn.setState(res.NewState)
	m.executeACLActions(conn, res.Actions)

	entry.cancelTimer = time.AfterFunc(m.createConnTimeout, func() {
		m.handleCreateConnectionTimeout(addr)
	})

	return nil
}

func (m *ConnectionManager) handleCreateConnectionTimeout(addr DeviceAddress) {
	m.mu.RLock()
	entry, ok := m.byAddr[addr]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if entry.conn.currentState() != ACLConnecting {
		return
	}

	_ = m.transport.Send(hcicodec.CreateConnectionCancel(addrToWire(addr)))
	// The actual teardown happens when the (possibly racing) Connection
	// Complete arrives with either UnknownConnectionID (cancel won) or a
	// success status (cancel lost the race); both outcomes are tolerated
	// by handleConnectionComplete.
}

// Disconnect is idempotent; reason ApiRequest starts the local-disconnect
// cooldown (§4.2.4). Always returns true if the peer exists.
func (m *ConnectionManager) Disconnect(peerID PeerId, reason DisconnectReason) bool {
	m.mu.RLock()
	var entry *connEntry
	for _, e := range m.byHandle {
		if e.conn.PeerId == peerID {
			entry = e
			break
		}
	}
	if entry == nil {
		for _, e := range m.byAddr {
			if e.conn.PeerId == peerID {
				entry = e
				break
			}
		}
	}
	m.mu.RUnlock()
	if entry == nil {
		_, known := m.cache.FindById(peerID)
		return known
	}

	entry.conn.mu.Lock()
	alreadyDisconnecting := entry.conn.State == ACLDisconnecting
	entry.conn.disconnectReason = reason
	entry.conn.mu.Unlock()

	if alreadyDisconnecting {
		return true
	}

	res := ApplyACLEvent(entry.conn.currentState(), ACLEventDisconnectRequested)
	if !res.Changed {
		return true
	}
	m.inFlightOps.Add(1)
	// The link is held in ACLDisconnecting until Disconnection Complete,
	// which is how handleDisconnectionComplete recognises a local request.
	entry.conn.setState(ACLDisconnecting)
	m.executeACLActions(entry.conn, res.Actions)
	return true
}

// OpenL2capChannel implements §4.2.6's security-upgrade procedure.
func (m *ConnectionManager) OpenL2capChannel(peerID PeerId, psm uint16, sec SecurityRequirements, params ChannelParameters, cb ChannelCallback) {
	entry, ok := m.connectionByPeer(peerID)
	if !ok {
		cb(0, ErrNoACL)
		return
	}

	entry.conn.mu.Lock()
	interrogating := entry.conn.interrogating
	entry.conn.mu.Unlock()
	if interrogating {
		// Peer-initiated pairing during interrogation is processed, but
		// channel opens are blocked until interrogation completes.
		cb(0, nil)
		return
	}

	if entry.conn.meetsSecurity(sec) {
		m.l2cap.OpenOutboundChannel(entry.conn.Handle, psm, params, cb)
		return
	}

	entry.conn.addPendingChannelOpen(pendingChannelOpen{psm: psm, security: sec, params: params, cb: cb})
	m.requestPairingUpgrade(entry.conn, sec)
}

// Pair initiates pairing if the current link key is insufficient;
// idempotent if already satisfied.
func (m *ConnectionManager) Pair(peerID PeerId, sec SecurityRequirements, cb func(error)) {
	entry, ok := m.connectionByPeer(peerID)
	if !ok {
		cb(ErrNoACL)
		return
	}
	if entry.conn.meetsSecurity(sec) {
		cb(nil)
		return
	}
	entry.conn.addPendingChannelOpen(pendingChannelOpen{cb: func(_ uint16, err error) { cb(err) }})
	m.requestPairingUpgrade(entry.conn, sec)
}

func (m *ConnectionManager) requestPairingUpgrade(conn *Connection, sec SecurityRequirements) {
	delegate := m.pairingDelegate()
	if delegate == nil {
		m.failPendingChannelOpens(conn, ErrNoPairingDelegate)
		return
	}
	if sec.Authenticated && !delegate.IOCapability().HasDisplayOrKeyboard() {
		// The delegate's capabilities cannot produce a key meeting the
		// requirement: fail without attempting a pairing round.
		m.failPendingChannelOpens(conn, ErrInsufficientSecurity)
		return
	}

	if conn.currentState() != ACLAvailable {
		return // a pairing round is already driving this connection
	}
	res := ApplyACLEvent(conn.currentState(), ACLEventPairingRequested)
	conn.setState(res.NewState)
	m.executeACLActions(conn, res.Actions)
}

func (m *ConnectionManager) failPendingChannelOpens(conn *Connection, err error) {
	for _, p := range conn.takePendingChannelOpens() {
		p.cb(0, err)
	}
}

// AddServiceSearch registers an SDP query dispatched against every new
// ACL once its interrogation succeeds; every registered search runs,
// whatever services the peer has reported so far.
func (m *ConnectionManager) AddServiceSearch(uuid string, attrIDs []uint16, cb func(peer PeerId, attrs map[uint16][]byte)) SearchId {
	return m.searches.add(uuid, attrIDs, cb)
}

// RemoveServiceSearch is idempotent; the second call with the same id
// returns false.
func (m *ConnectionManager) RemoveServiceSearch(id SearchId) bool {
	return m.searches.remove(id)
}

// OpenScoConnection requests a synchronous connection-oriented link on
// top of an existing ACL.
func (m *ConnectionManager) OpenScoConnection(peerID PeerId, cb func(handle uint16, err error)) {
	entry, ok := m.connectionByPeer(peerID)
	if !ok {
		cb(0, ErrNoACL)
		return
	}
	m.scoPending.register(entry.conn.Handle, cb)
	// Enhanced Setup Synchronous Connection parameters are supplied by
	// the caller via ChannelParameters-equivalent out of band in a full
	// implementation; the reference transport accepts the handle alone.
	_ = m.transport.Send(hcicodec.Command{OpCode: hcicodec.OpEnhancedSetupSyncConnection, Params: handle16ToBytes(entry.conn.Handle)})
}

// AcceptScoConnection registers acceptance for the next inbound
// synchronous connection request from peerID.
func (m *ConnectionManager) AcceptScoConnection(peerID PeerId) {
	m.scoAccept.mu.Lock()
	m.scoAccept.peers[peerID] = struct{}{}
	m.scoAccept.mu.Unlock()
}

// -------------------------------------------------------------------------
// Event dispatch — implements AsyncSink
// -------------------------------------------------------------------------

// HandleEvent routes one inbound HCI event to the appropriate handler.
// Invoked by the Dispatcher on its single event-processing path (§5).
func (m *ConnectionManager) HandleEvent(ev Event) {
	switch ev.Code {
	case hcicodec.EvConnectionRequest:
		m.handleConnectionRequest(ev)
	case hcicodec.EvConnectionComplete:
		m.handleConnectionComplete(ev)
	case hcicodec.EvDisconnectionComplete:
		m.handleDisconnectionComplete(ev)
	case hcicodec.EvLinkKeyRequest:
		m.handleLinkKeyRequest(ev)
	case hcicodec.EvLinkKeyNotification:
		m.handleLinkKeyNotification(ev)
	case hcicodec.EvIOCapabilityRequest:
		m.handleIOCapabilityRequest(ev)
	case hcicodec.EvUserConfirmationRequest:
		m.handleUserConfirmationRequest(ev)
	case hcicodec.EvUserPasskeyRequest:
		m.handleUserPasskeyRequest(ev)
	case hcicodec.EvUserPasskeyNotification:
		m.handleUserPasskeyNotification(ev)
	case hcicodec.EvSimplePairingComplete:
		m.handleSimplePairingComplete(ev)
	case hcicodec.EvAuthenticationComplete:
		m.handleAuthenticationComplete(ev)
	case hcicodec.EvEncryptionChange:
		m.handleEncryptionChange(ev)
	case hcicodec.EvRoleChange:
		m.handleRoleChange(ev)
	case hcicodec.EvSynchronousConnectionComplete:
		m.handleSyncConnectionComplete(ev)
	case hcicodec.EvRemoteNameRequestComplete:
		m.handleRemoteNameRequestComplete(ev)
	case hcicodec.EvReadRemoteVersionComplete:
		m.handleReadRemoteVersionComplete(ev)
	case hcicodec.EvReadRemoteSupportedFeatures:
		m.handleReadRemoteSupportedFeatures(ev)
	case hcicodec.EvReadRemoteExtendedFeatures:
		m.handleReadRemoteExtendedFeatures(ev)
	}
}

// connectionByHandle is the interrogator/pairing handlers' shared lookup.
func (m *ConnectionManager) connectionByHandle(handle uint16) (*connEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byHandle[handle]
	return entry, ok
}

// AddressForHandle returns the device address bound to an active ACL
// handle. L2capOpener implementations that connect by address rather
// than by handle (e.g. the kernel's BTPROTO_L2CAP socket API) use this
// to translate the handle OpenOutboundChannel is called with.
func (m *ConnectionManager) AddressForHandle(handle uint16) (DeviceAddress, bool) {
	entry, ok := m.connectionByHandle(handle)
	if !ok {
		return DeviceAddress{}, false
	}
	entry.conn.mu.Lock()
	defer entry.conn.mu.Unlock()
	return entry.conn.Addr, true
}

// RoleForHandle returns the ACL link role (Central/Peripheral) for an
// active handle, seeded from which side initiated on Connection Complete
// and kept current by Role Change events.
func (m *ConnectionManager) RoleForHandle(handle uint16) (Role, bool) {
	entry, ok := m.connectionByHandle(handle)
	if !ok {
		return 0, false
	}
	entry.conn.mu.Lock()
	defer entry.conn.mu.Unlock()
	return entry.conn.Role, true
}

func (m *ConnectionManager) handleConnectionRequest(ev Event) {
	req, err := hcicodec.DecodeConnectionRequest(ev.Params)
	if err != nil {
		m.logger.Warn("malformed connection request", slog.String("error", err.Error()))
		return
	}
	addr := wireToAddr(req.BDAddr, AddressBREDRPublic)

	switch req.LinkType {
	case hcicodec.LinkTypeACL:
		// falls through to the ACL accept path below.
	case hcicodec.LinkTypeSCO, hcicodec.LinkTypeESCO:
		if !m.scoAcceptRegistered(addr) {
			_ = m.transport.Send(hcicodec.RejectConnectionRequest(req.BDAddr, 0x0D))
			return
		}
		_ = m.transport.Send(hcicodec.Command{OpCode: hcicodec.OpEnhancedAcceptSyncConnection, Params: req.BDAddr[:]})
		return
	default:
		_ = m.transport.Send(hcicodec.RejectConnectionRequest(req.BDAddr, uint8(HCIStatusUnsupportedFeature)))
		return
	}

	m.mu.Lock()
	_, cooldown := m.activeCooldown(addr)
	_, inFlight := m.inboundInFlight[addr]
	if cooldown || inFlight {
		m.mu.Unlock()
		_ = m.transport.Send(hcicodec.RejectConnectionRequest(req.BDAddr, 0x0F))
		return
	}
	m.inboundInFlight[addr] = struct{}{}
	m.mu.Unlock()

	_ = m.transport.Send(hcicodec.AcceptConnectionRequest(req.BDAddr, 0x00))

	m.mu.Lock()
	entry, exists := m.byAddr[addr]
	if !exists {
		peer, ok := m.cache.FindByAddress(addr)
		if !ok {
			peer = m.cache.NewPeer(addr, true)
		}
		conn := newConnection(peer.Id, addr, m.logger)
		entry = &connEntry{conn: conn, connectTime: time.Now(), inbound: true}
		m.byAddr[addr] = entry
	}
	m.mu.Unlock()

	res := ApplyACLEvent(entry.conn.currentState(), ACLEventInboundAccepted)
	entry.conn.setState(res.NewState)
	m.executeACLActions(entry.conn, res.Actions)
}

func (m *ConnectionManager) handleConnectionComplete(ev Event) {
	cc, err := hcicodec.DecodeConnectionComplete(ev.Params)
	if err != nil {
		m.logger.Warn("malformed connection complete", slog.String("error", err.Error()))
		return
	}
	addr := wireToAddr(cc.BDAddr, AddressBREDRPublic)

	m.mu.Lock()
	delete(m.inboundInFlight, addr)
	entry, ok := m.byAddr[addr]
	m.mu.Unlock()
	if !ok {
		return
	}
	if entry.cancelTimer != nil {
		entry.cancelTimer.Stop()
	}

	status := HCIStatus(cc.Status)

	// §4.2.3: ConnectionAlreadyExists followed by a normal complete on
	// the incoming link satisfies the outbound callback; we simply treat
	// any success here as satisfying, which already covers that race.
	if status == HCIStatusUnknownConnectionID && entry.conn.currentState() == ACLConnecting {
		// Create Connection Cancel won the race against completion.
		m.failOutboundConnect(entry, ErrTimeout)
		m.mu.Lock()
		delete(m.byAddr, addr)
		m.mu.Unlock()
		return
	}

	if !status.Ok() {
		m.failOutboundConnect(entry, NewProtocolError("create-connection", status))
		res := ApplyACLEvent(entry.conn.currentState(), ACLEventConnCompleteFail)
		entry.conn.setState(res.NewState)
		m.executeACLActions(entry.conn, res.Actions)
		m.mu.Lock()
		delete(m.byAddr, addr)
		m.mu.Unlock()
		return
	}

	entry.conn.Handle = cc.Handle
	// Seed Role from which side initiated; a subsequent Role Change event
	// (handleRoleChange) is authoritative if a switch occurs afterward.
	if entry.inbound {
		entry.conn.Role = RolePeripheral
	} else {
		entry.conn.Role = RoleCentral
	}
	m.mu.Lock()
	m.byHandle[cc.Handle] = entry
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RegisterConnection(addr.String())
	}

	res := ApplyACLEvent(entry.conn.currentState(), ACLEventConnCompleteOK)
	entry.conn.setState(res.NewState)
	m.executeACLActions(entry.conn, res.Actions)
}

func (m *ConnectionManager) failOutboundConnect(entry *connEntry, err error) {
	for _, cb := range entry.conn.takePendingConnect() {
		cb(err, nil)
	}
}

func (m *ConnectionManager) handleDisconnectionComplete(ev Event) {
	dc, err := hcicodec.DecodeDisconnectionComplete(ev.Params)
	if err != nil {
		return
	}

	m.mu.Lock()
	entry, ok := m.byHandle[dc.Handle]
	if ok {
		delete(m.byHandle, dc.Handle)
		delete(m.byAddr, entry.conn.Addr)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.conn.mu.Lock()
	reason := entry.conn.disconnectReason
	isLocalRequest := entry.conn.State == ACLDisconnecting
	entry.conn.mu.Unlock()

	if isLocalRequest && reason == DisconnectReasonApiRequest {
		m.mu.Lock()
		m.cooldownUntil[entry.conn.Addr] = time.Now().Add(m.cooldown)
		m.mu.Unlock()
	}

	res := ApplyACLEvent(entry.conn.currentState(), ACLEventDisconnectionComplete)
	entry.conn.setState(res.NewState)
	m.executeACLActions(entry.conn, res.Actions)

	for _, p := range entry.conn.takePendingChannelOpens() {
		p.cb(0, nil)
	}

	if m.metrics != nil {
		m.metrics.UnregisterConnection(entry.conn.Addr.String())
	}
	if isLocalRequest {
		m.inFlightOps.Done()
	}
}

// -------------------------------------------------------------------------
// ACL FSM action execution
// -------------------------------------------------------------------------

func (m *ConnectionManager) executeACLActions(conn *Connection, actions []ACLAction) {
	for _, a := range actions {
		m.executeACLAction(conn, a)
	}
}

func (m *ConnectionManager) executeACLAction(conn *Connection, action ACLAction) {
	switch action {
	case ActionIssueHCIConnect:
		_ = m.transport.Send(hcicodec.CreateConnection(addrToWire(conn.Addr), 0xCC18, 0x00, 0x0000, true))
	case ActionStartInterrogation:
		conn.mu.Lock()
		conn.interrogating = true
		conn.mu.Unlock()
		m.startInterrogation(conn)
	case ActionStartPairing:
		// Pairing is HCI-event driven (§4.2.5); nothing to issue here,
		// the controller emits IO Capability Request on its own once a
		// pairing-capable state exists. Re-issuing Authentication
		// Requested nudges controllers that wait for the host.
		_ = m.transport.Send(hcicodec.AuthenticationRequested(conn.Handle))
	case ActionIssueDisconnect:
		_ = m.transport.Send(hcicodec.Disconnect(conn.Handle, 0x13))
	case ActionReportConnectError:
		m.failOutboundConnect(&connEntry{conn: conn}, ErrTimeout)
	case ActionReportInterrogateError:
		m.failOutboundConnect(&connEntry{conn: conn}, ErrAuthenticationFailed)
	case ActionReportPairingError:
		m.failPendingChannelOpens(conn, ErrAuthenticationFailed)
	case ActionFlushAvailableCallers:
		handle := conn.handleRef()
		for _, cb := range conn.takePendingConnect() {
			cb(nil, handle)
		}
		m.retryPendingChannelOpens(conn)
	case ActionNotifyPeerState:
		m.notifyPeerState(conn)
	}
}

func (m *ConnectionManager) retryPendingChannelOpens(conn *Connection) {
	for _, p := range conn.takePendingChannelOpens() {
		if conn.meetsSecurity(p.security) {
			if p.psm == 0 {
				p.cb(0, nil) // a bare Pair() call, not a channel open
				continue
			}
			m.l2cap.OpenOutboundChannel(conn.Handle, p.psm, p.params, p.cb)
		} else if p.retried {
			p.cb(0, ErrInsufficientSecurity)
		} else {
			p.retried = true
			conn.addPendingChannelOpen(p)
		}
	}
}

func (m *ConnectionManager) notifyPeerState(conn *Connection) {
	peer, ok := m.cache.FindById(conn.PeerId)
	if !ok {
		return
	}
	peer.ConnState = conn.currentState().MapToConnectionState()
	if peer.ConnState == ConnectionStateConnected {
		peer.Temporary = false
	}
	m.emitStateChange(peer)
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func (m *ConnectionManager) connectionByPeer(peerID PeerId) (*connEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.byHandle {
		if e.conn.PeerId == peerID {
			return e, true
		}
	}
	return nil, false
}

// activeCooldown reports whether addr is presently within its
// local-disconnect cooldown window.
func (m *ConnectionManager) activeCooldown(addr DeviceAddress) (time.Time, bool) {
	until, ok := m.cooldownUntil[addr]
	if !ok {
		return time.Time{}, false
	}
	if time.Now().After(until) {
		delete(m.cooldownUntil, addr)
		return time.Time{}, false
	}
	return until, true
}

func (m *ConnectionManager) scoAcceptRegistered(addr DeviceAddress) bool {
	peer, ok := m.cache.FindByAddress(addr)
	if !ok {
		return false
	}
	m.scoAccept.mu.Lock()
	defer m.scoAccept.mu.Unlock()
	_, accepted := m.scoAccept.peers[peer.Id]
	return accepted
}

func handle16ToBytes(h uint16) []byte {
	return []byte{byte(h), byte(h >> 8)}
}

func addrToWire(a DeviceAddress) hcicodec.Addr6 {
	return hcicodec.Addr6(a.Bytes)
}

func wireToAddr(a hcicodec.Addr6, t AddressType) DeviceAddress {
	return DeviceAddress{Type: t, Bytes: [6]byte(a)}
}

// Close tears the manager down: drains all in-flight local disconnects
// before returning, deterministically resolving the open question about
// teardown's "up to 1 extra transaction" tolerance (§9) rather than
// exposing it.
func (m *ConnectionManager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.inFlightOps.Wait()
	close(m.stateChanges)
	return nil
}
