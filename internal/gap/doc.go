// Package gap implements the core of a Bluetooth host stack's Generic
// Access Profile layer: BR/EDR connection management, BR/EDR and LE
// discovery, and post-connection peer interrogation.
package gap
