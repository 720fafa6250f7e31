// Package peercache is the reference in-memory Peer Cache: an
// RWMutex-guarded, two-index store (by gap.PeerId and by
// gap.DeviceAddress) implementing the gap.PeerCache contract.
package peercache
