package gap_test

import (
	"context"
	"sync"

	"github.com/dantte-lp/gogap/internal/gap"
)

// fakeTransport is an in-memory gap.Transport: Send records the command,
// HandleEvent-style tests push synthetic events directly onto events.
type fakeTransport struct {
	mu   sync.Mutex
	sent []gap.Command

	events chan gap.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan gap.Event, 64)}
}

func (t *fakeTransport) Send(cmd gap.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, cmd)
	return nil
}

func (t *fakeTransport) Events() <-chan gap.Event { return t.events }

func (t *fakeTransport) sentCommands() []gap.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]gap.Command(nil), t.sent...)
}

func (t *fakeTransport) lastSent() (gap.Command, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return gap.Command{}, false
	}
	return t.sent[len(t.sent)-1], true
}

// fakeCache is an in-memory gap.PeerCache good enough to drive the
// Discovery Managers and Connection Manager in isolation from the real
// Peer Cache implementation.
type fakeCache struct {
	mu        sync.Mutex
	alloc     *gap.PeerIdAllocator
	byAddr    map[gap.DeviceAddress]*gap.Peer
	byID      map[gap.PeerId]*gap.Peer
	observers []gap.CacheObserver
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		alloc:  gap.NewPeerIdAllocator(),
		byAddr: make(map[gap.DeviceAddress]*gap.Peer),
		byID:   make(map[gap.PeerId]*gap.Peer),
	}
}

func (c *fakeCache) NewPeer(addr gap.DeviceAddress, connectable bool) *gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byAddr[addr]; ok {
		return p
	}
	id, err := c.alloc.Allocate()
	if err != nil {
		panic(err)
	}
	p := gap.NewPeer(id, addr, connectable)
	c.byAddr[addr] = p
	c.byID[id] = p
	return p
}

func (c *fakeCache) FindByAddress(addr gap.DeviceAddress) (*gap.Peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byAddr[addr]
	return p, ok
}

func (c *fakeCache) FindById(id gap.PeerId) (*gap.Peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	return p, ok
}

func (c *fakeCache) AddBondedPeer(data gap.BondingData, addr gap.DeviceAddress) bool {
	c.mu.Lock()
	p, ok := c.byAddr[addr]
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.Bonded = true
	p.Bonding = &data
	return true
}

func (c *fakeCache) RemoveDisconnectedPeer(id gap.PeerId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byID[id]
	if !ok {
		return false
	}
	if !p.Temporary {
		return false
	}
	delete(c.byID, id)
	for _, a := range p.Addresses {
		delete(c.byAddr, a)
	}
	c.alloc.Release(id)
	return true
}

func (c *fakeCache) AllConnectable() []*gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*gap.Peer, 0, len(c.byID))
	for _, p := range c.byID {
		if p.Connectable {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeCache) Observe(o gap.CacheObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// fakeL2cap is an in-memory gap.L2capOpener: OpenOutboundChannel succeeds
// immediately with an incrementing channel id unless failNext is set.
type fakeL2cap struct {
	mu       sync.Mutex
	nextID   uint16
	failNext bool
	opened   []uint16 // handles opened against
}

func newFakeL2cap() *fakeL2cap { return &fakeL2cap{nextID: 1} }

func (l *fakeL2cap) OpenOutboundChannel(handle uint16, psm uint16, params gap.ChannelParameters, cb func(channelID uint16, err error)) {
	l.mu.Lock()
	l.opened = append(l.opened, handle)
	if l.failNext {
		l.failNext = false
		l.mu.Unlock()
		cb(0, gap.ErrNoACL)
		return
	}
	id := l.nextID
	l.nextID++
	l.mu.Unlock()
	cb(id, nil)
}

// fakePairingDelegate is a scriptable gap.PairingDelegate: every callback
// auto-confirms/accepts unless a field below is overridden by the test.
type fakePairingDelegate struct {
	mu           sync.Mutex
	ioCapability gap.IOCapability
	confirmed    bool
	passkey      int32
	completions  []error
}

func newFakePairingDelegate() *fakePairingDelegate {
	return &fakePairingDelegate{ioCapability: gap.IOCapabilityDisplayYesNo, confirmed: true, passkey: 123456}
}

func (d *fakePairingDelegate) IOCapability() gap.IOCapability { return d.ioCapability }

func (d *fakePairingDelegate) ConfirmPairing(_ gap.PeerId, cb func(confirmed bool)) {
	cb(d.confirmed)
}

func (d *fakePairingDelegate) DisplayPasskey(_ gap.PeerId, _ uint32, _ gap.PairingMethod, confirmCb func(confirmed bool)) {
	if confirmCb != nil {
		confirmCb(d.confirmed)
	}
}

func (d *fakePairingDelegate) RequestPasskey(_ gap.PeerId, cb func(passkey int32)) {
	cb(d.passkey)
}

func (d *fakePairingDelegate) CompletePairing(_ gap.PeerId, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completions = append(d.completions, err)
}

// fakeSdpClient is a scriptable gap.SdpClient: ServiceSearchAttribute
// returns a canned attribute map, or failNext's error, once per call.
type fakeSdpClient struct {
	mu       sync.Mutex
	attrs    map[uint16][]byte
	failNext error
	calls    int
}

func newFakeSdpClient() *fakeSdpClient {
	return &fakeSdpClient{attrs: map[uint16][]byte{0x0000: []byte("service-name")}}
}

func (s *fakeSdpClient) ServiceSearchAttribute(_ context.Context, _ uint16, _ string, _ []uint16) (map[uint16][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	return s.attrs, nil
}
