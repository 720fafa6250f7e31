package gap

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying the error kinds named by the core's error
// handling design: Protocol error, Timeout, Canceled, Not found, Not
// supported, Link error, Authentication failure, Insufficient security,
// Malformed.
var (
	// ErrTimeout indicates no response arrived within the per-operation
	// budget (e.g. Create Connection timeout).
	ErrTimeout = errors.New("gap: operation timed out")

	// ErrCanceled indicates the caller withdrew the request, or the
	// manager is being torn down.
	ErrCanceled = errors.New("gap: operation canceled")

	// ErrPeerNotFound indicates a PeerId has no Peer Cache entry.
	ErrPeerNotFound = errors.New("gap: peer not found")

	// ErrNotSupported indicates the operation is illegal for the peer's
	// technology (e.g. BR/EDR Connect on an LE-only peer).
	ErrNotSupported = errors.New("gap: operation not supported for peer")

	// ErrLinkError indicates L2CAP signaled a fatal channel failure.
	ErrLinkError = errors.New("gap: link error")

	// ErrAuthenticationFailed indicates a pairing round returned failure
	// or Simple Pairing Complete reported an error status.
	ErrAuthenticationFailed = errors.New("gap: authentication failed")

	// ErrInsufficientSecurity indicates pairing succeeded but did not
	// reach the requested security level, and no further attempt is
	// warranted (the delegate's capabilities cannot do better).
	ErrInsufficientSecurity = errors.New("gap: insufficient security")

	// ErrMalformed indicates an event payload failed parsing.
	ErrMalformed = errors.New("gap: malformed payload")

	// ErrNoACL indicates the operation requires a live ACL link that
	// does not exist for the peer.
	ErrNoACL = errors.New("gap: no ACL connection for peer")

	// ErrSearchNotFound indicates a SearchId that is not registered.
	ErrSearchNotFound = errors.New("gap: service search not found")

	// ErrNoPairingDelegate indicates a pairing-requiring operation was
	// attempted with no Pairing Delegate installed.
	ErrNoPairingDelegate = errors.New("gap: no pairing delegate installed")

	// ErrRejectedBadAddr is the literal rejection reason used for
	// duplicate in-flight inbound connection requests and for cooldown
	// rejections, matching the source's wire-level error string.
	ErrRejectedBadAddr = errors.New("connection rejected - bad BD_ADDR")

	// ErrUnacceptableParameters is the rejection reason for an
	// unregistered synchronous (SCO/eSCO) connection request.
	ErrUnacceptableParameters = errors.New("unacceptable connection parameters")

	// ErrUnsupportedFeature is the rejection reason for an unknown ACL
	// link type.
	ErrUnsupportedFeature = errors.New("unsupported feature or parameter")
)

// ProtocolError wraps a non-success HCI command status, classified by the
// status byte and propagated to the caller verbatim.
type ProtocolError struct {
	Op     string
	Status HCIStatus
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gap: %s: hci status %s", e.Op, e.Status)
}

// Is allows errors.Is(err, ErrProtocolError-shaped) style matching against
// any ProtocolError regardless of Op/Status.
func (e *ProtocolError) Is(target error) bool {
	_, ok := target.(*ProtocolError)
	return ok
}

// NewProtocolError constructs a ProtocolError for the given operation and
// HCI status byte.
func NewProtocolError(op string, status HCIStatus) error {
	return &ProtocolError{Op: op, Status: status}
}

// HCIStatus is the one-byte status code carried by HCI command complete
// and command status events. 0x00 is success; all other values are
// controller-defined errors, reproduced verbatim in ProtocolError.
type HCIStatus uint8

const (
	HCIStatusSuccess                   HCIStatus = 0x00
	HCIStatusUnknownConnectionID       HCIStatus = 0x02
	HCIStatusPageTimeout                HCIStatus = 0x04
	HCIStatusAuthenticationFailure     HCIStatus = 0x05
	HCIStatusPinOrKeyMissing           HCIStatus = 0x06
	HCIStatusConnectionTimeout         HCIStatus = 0x08
	HCIStatusConnectionAlreadyExists   HCIStatus = 0x0B
	HCIStatusCommandDisallowed         HCIStatus = 0x0C
	HCIStatusConnectionRejectedBadAddr HCIStatus = 0x0F
	HCIStatusUnsupportedFeature        HCIStatus = 0x11
	HCIStatusUnacceptableParameters    HCIStatus = 0x0D
	HCIStatusRemoteUserEndedConnection HCIStatus = 0x13
	HCIStatusConnectionTerminatedLocal HCIStatus = 0x16
	HCIStatusUnspecifiedError          HCIStatus = 0x1F
)

func (s HCIStatus) String() string {
	switch s {
	case HCIStatusSuccess:
		return "success"
	case HCIStatusUnknownConnectionID:
		return "unknown-connection-id"
	case HCIStatusPageTimeout:
		return "page-timeout"
	case HCIStatusAuthenticationFailure:
		return "authentication-failure"
	case HCIStatusPinOrKeyMissing:
		return "pin-or-key-missing"
	case HCIStatusConnectionTimeout:
		return "connection-timeout"
	case HCIStatusConnectionAlreadyExists:
		return "connection-already-exists"
	case HCIStatusCommandDisallowed:
		return "command-disallowed"
	case HCIStatusConnectionRejectedBadAddr:
		return "connection-rejected-bad-bd-addr"
	case HCIStatusUnsupportedFeature:
		return "unsupported-feature-or-parameter"
	case HCIStatusUnacceptableParameters:
		return "unacceptable-connection-parameters"
	case HCIStatusRemoteUserEndedConnection:
		return "remote-user-ended-connection"
	case HCIStatusConnectionTerminatedLocal:
		return "connection-terminated-by-local-host"
	case HCIStatusUnspecifiedError:
		return "unspecified-error"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}

// Ok reports whether the status represents success.
func (s HCIStatus) Ok() bool {
	return s == HCIStatusSuccess
}
