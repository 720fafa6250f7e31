// Package hcicodec encodes and decodes the Bluetooth HCI command and
// event parameter blocks the gap package's core subsystems consume.
// All multi-byte fields are little-endian per the HCI specification.
package hcicodec
