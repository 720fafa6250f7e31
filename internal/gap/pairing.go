package gap

import (
	"log/slog"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

func (m *ConnectionManager) handleLinkKeyRequest(ev Event) {
	req, err := hcicodec.DecodeLinkKeyRequest(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(req.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		_ = m.transport.Send(hcicodec.LinkKeyRequestNegativeReply(req.BDAddr))
		return
	}

	peer, ok := m.cache.FindById(entry.conn.PeerId)
	if !ok || peer.Bonding == nil {
		_ = m.transport.Send(hcicodec.LinkKeyRequestNegativeReply(req.BDAddr))
		return
	}

	entry.conn.mu.Lock()
	entry.conn.LinkKey = peer.Bonding
	entry.conn.mu.Unlock()

	_ = m.transport.Send(hcicodec.LinkKeyRequestReply(req.BDAddr, peer.Bonding.LinkKey))
}

// handleLinkKeyNotification persists the new key into the Peer Cache and
// bonds the peer, but only for Secure Simple Pairing key types (§9's
// resolution: a Changed Combination Key notification for an unbonded
// peer is a silent no-op, since the peer has no prior key to change).
func (m *ConnectionManager) handleLinkKeyNotification(ev Event) {
	note, err := hcicodec.DecodeLinkKeyNotification(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(note.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		return
	}

	keyType := LinkKeyType(note.KeyType)

	peer, ok := m.cache.FindById(entry.conn.PeerId)
	if !ok {
		return
	}

	if keyType == LinkKeyChangedCombination {
		if peer.Bonding == nil {
			return // no prior key to change: no-op
		}
		peer.Bonding.LinkKey = note.LinkKey
		entry.conn.mu.Lock()
		entry.conn.LinkKey = peer.Bonding
		entry.conn.mu.Unlock()
		return
	}

	data := BondingData{
		LinkKey:           note.LinkKey,
		KeyType:           keyType,
		Authenticated:     keyType == LinkKeyAuthenticatedCombination192 || keyType == LinkKeyAuthenticatedCombination256,
		SecureConnections: keyType == LinkKeyUnauthenticatedCombination256 || keyType == LinkKeyAuthenticatedCombination256,
		KeySize:           16,
	}

	entry.conn.mu.Lock()
	entry.conn.LinkKey = &data
	entry.conn.mu.Unlock()

	if keyType.IsSecureSimplePairing() {
		m.cache.AddBondedPeer(data, addr)
	}
}

func (m *ConnectionManager) handleIOCapabilityRequest(ev Event) {
	req, err := hcicodec.DecodeIOCapabilityRequest(ev.Params)
	if err != nil {
		return
	}

	delegate := m.pairingDelegate()
	if delegate == nil {
		_ = m.transport.Send(hcicodec.IOCapabilityRequestNegativeReply(req.BDAddr, uint8(HCIStatusPinOrKeyMissing)))
		return
	}

	// Authentication requirement byte: General Bonding, MITM Protection
	// unset unless the capability can do something other than
	// NoInputNoOutput; the concrete requirement level is resolved once
	// the peer's needed SecurityRequirements are known from a pending
	// channel open, defaulting to General Bonding No MITM otherwise.
	authReq := uint8(0x01) // General Bonding, No MITM
	if delegate.IOCapability().HasDisplayOrKeyboard() {
		authReq = 0x03 // General Bonding, MITM Protection
	}

	_ = m.transport.Send(hcicodec.IOCapabilityRequestReply(req.BDAddr, uint8(delegate.IOCapability()), 0x00, authReq))
}

func (m *ConnectionManager) handleUserConfirmationRequest(ev Event) {
	req, err := hcicodec.DecodeUserConfirmationRequest(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(req.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	delegate := m.pairingDelegate()
	if !ok || delegate == nil {
		_ = m.transport.Send(hcicodec.UserConfirmationRequestReply(req.BDAddr, false))
		return
	}

	peerID := entry.conn.PeerId
	delegate.ConfirmPairing(peerID, func(confirmed bool) {
		_ = m.transport.Send(hcicodec.UserConfirmationRequestReply(req.BDAddr, confirmed))
	})
}

func (m *ConnectionManager) handleUserPasskeyRequest(ev Event) {
	req, err := hcicodec.DecodeUserPasskeyRequest(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(req.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	delegate := m.pairingDelegate()
	if !ok || delegate == nil {
		_ = m.transport.Send(hcicodec.UserPasskeyRequestNegativeReply(req.BDAddr))
		return
	}

	delegate.RequestPasskey(entry.conn.PeerId, func(passkey int32) {
		if passkey < 0 {
			_ = m.transport.Send(hcicodec.UserPasskeyRequestNegativeReply(req.BDAddr))
			return
		}
		_ = m.transport.Send(hcicodec.UserPasskeyRequestReply(req.BDAddr, uint32(passkey)))
	})
}

func (m *ConnectionManager) handleUserPasskeyNotification(ev Event) {
	note, err := hcicodec.DecodeUserPasskeyNotification(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(note.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	delegate := m.pairingDelegate()
	if !ok || delegate == nil {
		return
	}
	delegate.DisplayPasskey(entry.conn.PeerId, note.Passkey, PairingMethodPasskeyDisplay, nil)
}

func (m *ConnectionManager) handleSimplePairingComplete(ev Event) {
	sp, err := hcicodec.DecodeSimplePairingComplete(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(sp.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		return
	}

	delegate := m.pairingDelegate()
	status := HCIStatus(sp.Status)

	var pairErr error
	if !status.Ok() {
		pairErr = NewProtocolError("simple-pairing", status)
	}
	if delegate != nil {
		delegate.CompletePairing(entry.conn.PeerId, pairErr)
	}

	if entry.conn.currentState() != ACLPairing {
		// Pairing happened outside an explicit Pair()/OpenL2capChannel()
		// upgrade request (e.g. peer-initiated during Available); the ACL
		// FSM only tracks the upgrade-triggered round.
		return
	}

	event := ACLEventPairingSuccess
	if !status.Ok() {
		event = ACLEventPairingFailure
	}
	res := ApplyACLEvent(entry.conn.currentState(), event)
	entry.conn.setState(res.NewState)
	m.executeACLActions(entry.conn, res.Actions)
}

func (m *ConnectionManager) handleAuthenticationComplete(ev Event) {
	ac, err := hcicodec.DecodeAuthenticationComplete(ev.Params)
	if err != nil {
		return
	}
	entry, ok := m.connectionByHandle(ac.Handle)
	if !ok {
		return
	}
	status := HCIStatus(ac.Status)
	if status.Ok() {
		// Authentication succeeded on an existing key: trigger encryption
		// so L2CAP channel opens awaiting only encryption (not a fresh
		// pairing round) can proceed.
		_ = m.transport.Send(hcicodec.SetConnectionEncryption(ac.Handle, true))
		return
	}

	if entry.conn.currentState() == ACLPairing {
		res := ApplyACLEvent(entry.conn.currentState(), ACLEventPairingFailure)
		entry.conn.setState(res.NewState)
		m.executeACLActions(entry.conn, res.Actions)
	}
}

func (m *ConnectionManager) handleEncryptionChange(ev Event) {
	ec, err := hcicodec.DecodeEncryptionChange(ev.Params)
	if err != nil {
		return
	}
	entry, ok := m.connectionByHandle(ec.Handle)
	if !ok {
		return
	}
	status := HCIStatus(ec.Status)
	if !status.Ok() {
		return
	}

	entry.conn.mu.Lock()
	if ec.Enabled != 0 {
		entry.conn.Encryption = EncryptionOn
	} else {
		entry.conn.Encryption = EncryptionOff
	}
	state := entry.conn.State
	entry.conn.mu.Unlock()

	if entry.conn.Encryption != EncryptionOn {
		// Encryption dropping on a link that already finished pairing is a
		// MIC failure (or a remote forcing cleartext); the link can no
		// longer be trusted and is torn down, cleaned up on the
		// subsequent Disconnection Complete.
		if state != ACLPairing {
			m.Disconnect(entry.conn.PeerId, DisconnectReasonError)
		}
		return
	}
	_ = m.transport.Send(hcicodec.ReadEncryptionKeySize(ec.Handle))

	if entry.conn.currentState() == ACLPairing {
		res := ApplyACLEvent(entry.conn.currentState(), ACLEventPairingSuccess)
		entry.conn.setState(res.NewState)
		m.executeACLActions(entry.conn, res.Actions)
	} else {
		m.retryPendingChannelOpens(entry.conn)
	}
}

func (m *ConnectionManager) handleRoleChange(ev Event) {
	rc, err := hcicodec.DecodeRoleChange(ev.Params)
	if err != nil {
		return
	}
	if !HCIStatus(rc.Status).Ok() {
		return
	}
	addr := wireToAddr(rc.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		return
	}
	entry.conn.mu.Lock()
	if rc.NewRole == 0x00 {
		entry.conn.Role = RoleCentral
	} else {
		entry.conn.Role = RolePeripheral
	}
	entry.conn.mu.Unlock()
}

func (m *ConnectionManager) handleSyncConnectionComplete(ev Event) {
	sc, err := hcicodec.DecodeSynchronousConnectionComplete(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(sc.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		return
	}
	status := HCIStatus(sc.Status)

	cb, hasPending := m.scoPending.take(entry.conn.Handle)

	if status.Ok() {
		entry.conn.mu.Lock()
		entry.conn.scoHandles = append(entry.conn.scoHandles, sc.Handle)
		entry.conn.mu.Unlock()
	}

	if hasPending {
		if status.Ok() {
			cb(sc.Handle, nil)
		} else {
			cb(0, NewProtocolError("synchronous-connection", status))
		}
		return
	}

	if !status.Ok() {
		m.logger.Debug("inbound synchronous connection failed", slog.String("status", status.String()))
	}
}
