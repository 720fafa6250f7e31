// Package l2capsock is the reference gap.L2capOpener implementation: it
// opens BTPROTO_L2CAP sockets against a peer's Bluetooth address,
// mirroring internal/hcisock's raw-socket approach one layer up the
// stack. The GAP core only ever calls through the L2capOpener interface;
// this package is wired in by cmd/gapd.
package l2capsock
