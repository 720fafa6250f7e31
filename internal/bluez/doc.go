// Package bluez is the optional BlueZ D-Bus bridge: a gap.CacheObserver
// that mirrors Peer Cache entries onto org.bluez.Device1-shaped objects
// on the system bus, and an org.bluez.Adapter1 Powered/Discoverable
// backend the daemon can use instead of issuing raw HCI scan-enable
// commands. The GAP core has no D-Bus dependency of its own; this
// package only ever observes it from outside.
package bluez
