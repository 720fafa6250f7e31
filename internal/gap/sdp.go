package gap

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SearchId identifies a registered service search (§4.2.7).
type SearchId uint32

type registeredSearch struct {
	id      SearchId
	uuid    string
	attrIDs []uint16
	cb      func(peer PeerId, attrs map[uint16][]byte)
}

// searchRegistry holds the set of service searches dispatched against
// every ACL once its interrogation completes. Grounded on
// internal/bfd/manager.go's registration maps: a simple id-keyed map
// under one mutex, no FSM involved since registration has no lifecycle
// beyond present/absent.
type searchRegistry struct {
	mu      sync.Mutex
	nextID  atomic.Uint32
	entries map[SearchId]registeredSearch
}

func newSearchRegistry() *searchRegistry {
	return &searchRegistry{entries: make(map[SearchId]registeredSearch)}
}

func (r *searchRegistry) add(uuid string, attrIDs []uint16, cb func(peer PeerId, attrs map[uint16][]byte)) SearchId {
	id := SearchId(r.nextID.Add(1))
	r.mu.Lock()
	r.entries[id] = registeredSearch{id: id, uuid: uuid, attrIDs: attrIDs, cb: cb}
	r.mu.Unlock()
	return id
}

func (r *searchRegistry) remove(id SearchId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *searchRegistry) all() []registeredSearch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registeredSearch, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// sdpPSM is the L2CAP PSM the Connection Manager opens (PSM 1, SDP) to
// reach the peer's SDP server for its queries.
const sdpPSM uint16 = 0x0001

// dispatchServiceSearches runs every registered search against a newly
// interrogated peer. Failures are logged and do not affect the ACL's
// lifecycle: SDP is informational, not a precondition for Connected.
func (m *ConnectionManager) dispatchServiceSearches(entry *connEntry) {
	searches := m.searches.all()
	if len(searches) == 0 {
		return
	}
	if m.sdp == nil {
		return
	}

	handle := entry.conn.Handle
	peerID := entry.conn.PeerId

	m.l2cap.OpenOutboundChannel(handle, sdpPSM, ChannelParameters{Mode: L2capModeBasic}, func(channelID uint16, err error) {
		if err != nil {
			m.logger.Debug("sdp channel open failed", slog.Uint64("handle", uint64(handle)), slog.String("error", err.Error()))
			return
		}
		for _, s := range searches {
			go m.runServiceSearch(channelID, peerID, s)
		}
	})
}

func (m *ConnectionManager) runServiceSearch(channelID uint16, peerID PeerId, s registeredSearch) {
	ctx, cancel := context.WithTimeout(context.Background(), sdpQueryTimeout)
	defer cancel()

	attrs, err := m.sdp.ServiceSearchAttribute(ctx, channelID, s.uuid, s.attrIDs)
	if err != nil {
		m.logger.Debug("service search failed", slog.String("uuid", s.uuid), slog.String("error", err.Error()))
		return
	}
	if peer, ok := m.cache.FindById(peerID); ok {
		peer.Capability.ServiceUUIDs[s.uuid] = struct{}{}
		peer.Capability.ServiceRecords[s.uuid] = attrs
	}
	s.cb(peerID, attrs)
}
