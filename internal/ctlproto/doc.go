// Package ctlproto is the gapd/gapctl control protocol: length-prefixed
// JSON requests and responses exchanged over a Unix domain socket,
// replacing the sibling project's generated ConnectRPC/protobuf service
// (see DESIGN.md for why that dependency chain was dropped).
package ctlproto
