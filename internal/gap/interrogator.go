package gap

import (
	"log/slog"
	"sync"

	"github.com/dantte-lp/gogap/internal/hcicodec"
)

// interrogationRegistry holds one interrogationState per in-flight ACL
// handle, protected independently of the Connection Manager's main
// mutex since it is written from several different event handlers.
type interrogationRegistry struct {
	mu    sync.Mutex
	byHdl map[uint16]*interrogationState
}

func (r *interrogationRegistry) set(handle uint16, st *interrogationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byHdl == nil {
		r.byHdl = make(map[uint16]*interrogationState)
	}
	r.byHdl[handle] = st
}

func (r *interrogationRegistry) get(handle uint16) (*interrogationState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.byHdl[handle]
	return st, ok
}

func (r *interrogationRegistry) delete(handle uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byHdl, handle)
}

// interrogationState tracks which of the batch's parallel HCI requests
// are still outstanding for one Connection. The BR/EDR Interrogator
// issues all of them back to back immediately on entry to
// ACLInterrogating and completes once every outstanding bit clears
// (§4.1 "one-shot batch", not a sequential chain).
type interrogationState struct {
	needName           bool
	needVersion        bool
	needFeatures       bool
	needExtFeatures    bool
	extFeaturesPage    uint8
	maxExtFeaturesPage uint8
}

func (s *interrogationState) done() bool {
	return !s.needName && !s.needVersion && !s.needFeatures && !s.needExtFeatures
}

// startInterrogation issues the full batch of read requests for a newly
// connected ACL. Grounded on the sibling project's session negotiation
// burst (fsm.go's StateInit handling in session.go), generalized from a
// single negotiated parameter set to a fixed batch of independent reads.
func (m *ConnectionManager) startInterrogation(conn *Connection) {
	st := &interrogationState{needName: true, needVersion: true, needFeatures: true}

	m.interrogations.set(conn.Handle, st)

	addr := addrToWire(conn.Addr)
	if err := m.transport.Send(hcicodec.RemoteNameRequest(addr, 0x00, 0x0000)); err != nil {
		m.logger.Warn("remote name request failed", slog.Uint64("handle", uint64(conn.Handle)), slog.String("error", err.Error()))
	}
	if err := m.transport.Send(hcicodec.ReadRemoteVersionInformation(conn.Handle)); err != nil {
		m.logger.Warn("read remote version failed", slog.Uint64("handle", uint64(conn.Handle)), slog.String("error", err.Error()))
	}
	if err := m.transport.Send(hcicodec.ReadRemoteSupportedFeatures(conn.Handle)); err != nil {
		m.logger.Warn("read remote features failed", slog.Uint64("handle", uint64(conn.Handle)), slog.String("error", err.Error()))
	}
}

func (m *ConnectionManager) completeInterrogationStep(handle uint16, failed bool) {
	st, ok := m.interrogations.get(handle)
	if !ok {
		return // already finalized; late/duplicate event
	}

	entry, ok := m.connectionByHandle(handle)
	if !ok {
		return
	}

	if failed {
		m.interrogations.delete(handle)
		entry.conn.mu.Lock()
		entry.conn.interrogating = false
		entry.conn.mu.Unlock()
		res := ApplyACLEvent(entry.conn.currentState(), ACLEventInterrogateFail)
		entry.conn.setState(res.NewState)
		m.executeACLActions(entry.conn, res.Actions)
		return
	}

	if !st.done() {
		return
	}

	m.interrogations.delete(handle)
	entry.conn.mu.Lock()
	entry.conn.interrogating = false
	entry.conn.mu.Unlock()
	res := ApplyACLEvent(entry.conn.currentState(), ACLEventInterrogateOK)
	entry.conn.setState(res.NewState)
	m.executeACLActions(entry.conn, res.Actions)

	m.dispatchServiceSearches(entry)
}

func (m *ConnectionManager) handleRemoteNameRequestComplete(ev Event) {
	rn, err := hcicodec.DecodeRemoteNameRequestComplete(ev.Params)
	if err != nil {
		return
	}
	addr := wireToAddr(rn.BDAddr, AddressBREDRPublic)
	entry, ok := m.byAddrLocked(addr)
	if !ok {
		return
	}

	status := HCIStatus(rn.Status)
	if status.Ok() {
		if peer, ok := m.cache.FindById(entry.conn.PeerId); ok {
			peer.Capability.Name = hcicodec.ParseRemoteName(rn.Name)
			peer.Capability.NameSource = "discovery-procedure"
		}
	}

	m.completeInterrogationBit(entry.conn.Handle, func(s *interrogationState) { s.needName = false }, !status.Ok())
}

func (m *ConnectionManager) handleReadRemoteVersionComplete(ev Event) {
	rv, err := hcicodec.DecodeReadRemoteVersionComplete(ev.Params)
	if err != nil {
		return
	}
	entry, ok := m.connectionByHandle(rv.Handle)
	if !ok {
		return
	}
	status := HCIStatus(rv.Status)
	if status.Ok() {
		if peer, ok := m.cache.FindById(entry.conn.PeerId); ok {
			peer.Capability.HCIVersion = rv.LMPVersion
			peer.Capability.Manufacturer = rv.Manufacturer
			peer.Capability.LMPSubversion = rv.LMPSubversion
		}
	}
	m.completeInterrogationBit(rv.Handle, func(s *interrogationState) { s.needVersion = false }, !status.Ok())
}

func (m *ConnectionManager) handleReadRemoteSupportedFeatures(ev Event) {
	rf, err := hcicodec.DecodeReadRemoteSupportedFeaturesComplete(ev.Params)
	if err != nil {
		return
	}
	entry, ok := m.connectionByHandle(rf.Handle)
	if !ok {
		return
	}
	status := HCIStatus(rf.Status)
	extendedBit := false
	if status.Ok() {
		if peer, ok := m.cache.FindById(entry.conn.PeerId); ok {
			peer.Capability.FeaturePages[0] = rf.Features
			extendedBit = rf.Features[7]&0x80 != 0 // bit 63: extended features available
		}
	}

	st, ok := m.interrogations.get(rf.Handle)
	if ok && extendedBit {
		st.needExtFeatures = true
		st.extFeaturesPage = 1
		_ = m.transport.Send(hcicodec.ReadRemoteExtendedFeatures(rf.Handle, st.extFeaturesPage))
	}

	m.completeInterrogationBit(rf.Handle, func(s *interrogationState) { s.needFeatures = false }, !status.Ok())
}

func (m *ConnectionManager) handleReadRemoteExtendedFeatures(ev Event) {
	rf, err := hcicodec.DecodeReadRemoteExtendedFeaturesComplete(ev.Params)
	if err != nil {
		return
	}
	entry, ok := m.connectionByHandle(rf.Handle)
	if !ok {
		return
	}
	status := HCIStatus(rf.Status)
	st, ok := m.interrogations.get(rf.Handle)
	if ok && status.Ok() && rf.PageNumber == 1 {
		st.maxExtFeaturesPage = rf.MaxPageNumber
	}
	if status.Ok() {
		if peer, found := m.cache.FindById(entry.conn.PeerId); found {
			peer.Capability.FeaturePages[rf.PageNumber] = rf.Features
			maxPage := rf.MaxPageNumber
			if ok && maxPage > st.maxExtFeaturesPage {
				maxPage = st.maxExtFeaturesPage // capped at the page-1 value
			}
			if maxPage > peer.Capability.MaxFeaturePage {
				peer.Capability.MaxFeaturePage = maxPage
			}
		}
	}

	if ok && status.Ok() && rf.PageNumber != st.extFeaturesPage {
		// A page other than the one requested ends the sequence and
		// leaves the peer's last page at 0.
		if peer, found := m.cache.FindById(entry.conn.PeerId); found {
			peer.Capability.MaxFeaturePage = 0
		}
	} else if ok && status.Ok() && rf.PageNumber < rf.MaxPageNumber && rf.PageNumber < st.maxExtFeaturesPage {
		st.extFeaturesPage = rf.PageNumber + 1
		_ = m.transport.Send(hcicodec.ReadRemoteExtendedFeatures(rf.Handle, st.extFeaturesPage))
		return
	}

	m.completeInterrogationBit(rf.Handle, func(s *interrogationState) { s.needExtFeatures = false }, !status.Ok())
}

func (m *ConnectionManager) completeInterrogationBit(handle uint16, clear func(*interrogationState), failed bool) {
	st, ok := m.interrogations.get(handle)
	if !ok {
		return
	}
	clear(st)
	m.completeInterrogationStep(handle, failed)
}

func (m *ConnectionManager) byAddrLocked(addr DeviceAddress) (*connEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byAddr[addr]
	return e, ok
}
