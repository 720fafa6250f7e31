package gap

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
)

// ErrPeerIdExhausted is returned when the allocator cannot find a free
// PeerId within maxAllocAttempts tries.
var ErrPeerIdExhausted = errors.New("gap: peer id space exhausted")

// maxAllocAttempts bounds the retry loop in Allocate, mirroring the
// bounded-retry discriminator allocation this type is grounded on.
const maxAllocAttempts = 100

// PeerIdAllocator mints unique, non-zero PeerIds for the Peer Cache.
// A PeerId is never reused while still allocated.
type PeerIdAllocator struct {
	mu        sync.Mutex
	allocated map[PeerId]struct{}
}

// NewPeerIdAllocator creates an empty allocator.
func NewPeerIdAllocator() *PeerIdAllocator {
	return &PeerIdAllocator{
		allocated: make(map[PeerId]struct{}),
	}
}

// Allocate returns a fresh, unique, non-zero PeerId.
func (a *PeerIdAllocator) Allocate() (PeerId, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		id, err := randomPeerId()
		if err != nil {
			return 0, err
		}
		if id == 0 {
			continue
		}
		if _, exists := a.allocated[id]; exists {
			continue
		}
		a.allocated[id] = struct{}{}
		return id, nil
	}
	return 0, ErrPeerIdExhausted
}

// Release frees a previously allocated PeerId for potential reuse.
func (a *PeerIdAllocator) Release(id PeerId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}

// IsAllocated reports whether id is currently held by the allocator.
func (a *PeerIdAllocator) IsAllocated(id PeerId) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.allocated[id]
	return ok
}

func randomPeerId() (PeerId, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return PeerId(binary.BigEndian.Uint64(buf[:])), nil
}
