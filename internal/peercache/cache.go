package peercache

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/dantte-lp/gogap/internal/gap"
)

// Cache is the reference gap.PeerCache implementation: peers indexed by
// PeerId (primary) and by DeviceAddress (for the demux path event
// handlers use when a wire event carries only an address). This
// reference cache is volatile: it has no load or save path, so no peer,
// bonded or not, survives a process restart.
//
// Grounded on internal/bfd/manager.go's Manager: sessions/sessionsByPeer
// dual maps under one sync.RWMutex, generalized from discriminator/
// peer-key keys to PeerId/DeviceAddress keys, and the Manager's
// rawNotifyCh/publicNotifyCh fan-out, collapsed here to a slice of
// observers called synchronously, since the cache has a goroutine-free
// update path (all mutation happens on the gap dispatcher goroutine,
// per §5).
type Cache struct {
	mu sync.RWMutex

	byID   map[gap.PeerId]*gap.Peer
	byAddr map[gap.DeviceAddress]*gap.Peer

	nextID uint64 // fallback counter if crypto/rand allocation is exhausted

	observers []gap.CacheObserver

	logger *slog.Logger
}

// New creates an empty Cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		byID:   make(map[gap.PeerId]*gap.Peer),
		byAddr: make(map[gap.DeviceAddress]*gap.Peer),
		logger: logger,
	}
}

// NewPeer implements gap.PeerCache: mints a fresh PeerId and inserts a
// temporary Peer record for addr, unless one already exists under that
// exact (type, bytes) key.
func (c *Cache) NewPeer(addr gap.DeviceAddress, connectable bool) *gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byAddr[addr]; ok {
		return existing
	}

	id := c.allocatePeerIdLocked()
	peer := gap.NewPeer(id, addr, connectable)
	c.byID[id] = peer
	c.byAddr[addr] = peer
	c.notifyUpdatedLocked(peer)
	return peer
}

func (c *Cache) allocatePeerIdLocked() gap.PeerId {
	var buf [8]byte
	for attempt := 0; attempt < 100; attempt++ {
		if _, err := rand.Read(buf[:]); err != nil {
			break
		}
		id := gap.PeerId(binary.BigEndian.Uint64(buf[:]))
		if _, exists := c.byID[id]; !exists && id != 0 {
			return id
		}
	}
	c.nextID++
	return gap.PeerId(c.nextID)
}

// FindByAddress implements gap.PeerCache.
func (c *Cache) FindByAddress(addr gap.DeviceAddress) (*gap.Peer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byAddr[addr]
	return p, ok
}

// FindById implements gap.PeerCache.
func (c *Cache) FindById(id gap.PeerId) (*gap.Peer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// AddBondedPeer implements gap.PeerCache: promotes the peer already
// known under addr to bonded, or creates one if this is the first time
// a bond has been formed with no prior ACL observation (e.g. restoring
// bonds read from persisted storage at startup).
func (c *Cache) AddBondedPeer(data gap.BondingData, addr gap.DeviceAddress) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	peer, ok := c.byAddr[addr]
	if !ok {
		id := c.allocatePeerIdLocked()
		peer = gap.NewPeer(id, addr, true)
		c.byID[id] = peer
		c.byAddr[addr] = peer
	}

	bond := data
	peer.Bonding = &bond
	peer.Bonded = true
	peer.Temporary = false

	c.notifyBondedLocked(peer)
	return true
}

// RemoveDisconnectedPeer implements gap.PeerCache: evicts a peer record
// entirely. Only meaningful for Temporary, unbonded peers; callers must
// not call this for a bonded peer they intend to reconnect to later.
func (c *Cache) RemoveDisconnectedPeer(id gap.PeerId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	peer, ok := c.byID[id]
	if !ok {
		return false
	}
	delete(c.byID, id)
	for _, a := range peer.Addresses {
		delete(c.byAddr, a)
	}
	return true
}

// AllConnectable implements gap.PeerCache.
func (c *Cache) AllConnectable() []*gap.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*gap.Peer, 0, len(c.byID))
	for _, p := range c.byID {
		if p.Connectable {
			out = append(out, p)
		}
	}
	return out
}

// Observe implements gap.PeerCache. Observer callbacks are invoked
// synchronously on the caller's goroutine (the gap dispatcher goroutine
// in practice, per §5), exactly like the sibling Manager's rawNotifyCh
// consumer running on its own dispatch loop.
func (c *Cache) Observe(o gap.CacheObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Cache) notifyUpdatedLocked(p *gap.Peer) {
	for _, o := range c.observers {
		o.OnPeerUpdated(p)
	}
}

func (c *Cache) notifyBondedLocked(p *gap.Peer) {
	for _, o := range c.observers {
		o.OnPeerBonded(p)
	}
}

// Snapshot returns a point-in-time listing of every cached peer, for the
// control protocol's "list peers" query.
func (c *Cache) Snapshot() []gap.PeerSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]gap.PeerSnapshot, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p.Snapshot())
	}
	return out
}
