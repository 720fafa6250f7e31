// Package hcisock is the reference HCI transport: a Linux
// AF_BLUETOOTH/BTPROTO_HCI raw socket bound to one controller, exposing
// the gap.Transport contract.
package hcisock
