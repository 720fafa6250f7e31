package hcicodec

import (
	"encoding/binary"
	"errors"
)

// ErrShortPacket indicates a parameter block was too short to decode.
var ErrShortPacket = errors.New("hcicodec: packet too short")

// Addr6 is a 6-byte Bluetooth device address in wire (little-endian)
// byte order.
type Addr6 [6]byte

// Command is a generic HCI command: an opcode plus its raw parameter
// block, ready for transmission by a Transport implementation.
type Command struct {
	OpCode OpCode
	Params []byte
}

// Event is a generic HCI event: an event code plus its raw parameter
// block, as delivered by a Transport implementation.
type Event struct {
	Code   EventCode
	Params []byte
}

// -------------------------------------------------------------------------
// Command parameter encoders
// -------------------------------------------------------------------------

// CreateConnection encodes the Create Connection command parameters.
func CreateConnection(addr Addr6, packetType uint16, pageScanRepMode uint8, clockOffset uint16, allowRoleSwitch bool) Command {
	buf := make([]byte, 13)
	copy(buf[0:6], addr[:])
	binary.LittleEndian.PutUint16(buf[6:8], packetType)
	buf[8] = pageScanRepMode
	buf[9] = 0 // reserved
	binary.LittleEndian.PutUint16(buf[10:12], clockOffset)
	if allowRoleSwitch {
		buf[12] = 1
	}
	return Command{OpCode: OpCreateConnection, Params: buf}
}

// CreateConnectionCancel encodes Create Connection Cancel.
func CreateConnectionCancel(addr Addr6) Command {
	return Command{OpCode: OpCreateConnectionCancel, Params: append([]byte{}, addr[:]...)}
}

// AcceptConnectionRequest encodes Accept Connection Request.
func AcceptConnectionRequest(addr Addr6, role uint8) Command {
	buf := make([]byte, 7)
	copy(buf[0:6], addr[:])
	buf[6] = role
	return Command{OpCode: OpAcceptConnectionRequest, Params: buf}
}

// RejectConnectionRequest encodes Reject Connection Request.
func RejectConnectionRequest(addr Addr6, reason uint8) Command {
	buf := make([]byte, 7)
	copy(buf[0:6], addr[:])
	buf[6] = reason
	return Command{OpCode: OpRejectConnectionRequest, Params: buf}
}

// Disconnect encodes the Disconnect command.
func Disconnect(handle uint16, reason uint8) Command {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], handle)
	buf[2] = reason
	return Command{OpCode: OpDisconnect, Params: buf}
}

// RemoteNameRequest encodes Remote Name Request.
func RemoteNameRequest(addr Addr6, pageScanRepMode uint8, clockOffset uint16) Command {
	buf := make([]byte, 10)
	copy(buf[0:6], addr[:])
	buf[6] = pageScanRepMode
	buf[7] = 0 // reserved
	binary.LittleEndian.PutUint16(buf[8:10], clockOffset)
	return Command{OpCode: OpRemoteNameRequest, Params: buf}
}

func handleOnly(op OpCode, handle uint16) Command {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, handle)
	return Command{OpCode: op, Params: buf}
}

// ReadRemoteVersionInformation encodes Read Remote Version Information.
func ReadRemoteVersionInformation(handle uint16) Command {
	return handleOnly(OpReadRemoteVersionInformation, handle)
}

// ReadRemoteSupportedFeatures encodes Read Remote Supported Features.
func ReadRemoteSupportedFeatures(handle uint16) Command {
	return handleOnly(OpReadRemoteSupportedFeatures, handle)
}

// ReadRemoteExtendedFeatures encodes Read Remote Extended Features.
func ReadRemoteExtendedFeatures(handle uint16, page uint8) Command {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], handle)
	buf[2] = page
	return Command{OpCode: OpReadRemoteExtendedFeatures, Params: buf}
}

// LinkKeyRequestReply encodes Link Key Request Reply.
func LinkKeyRequestReply(addr Addr6, key [16]byte) Command {
	buf := make([]byte, 22)
	copy(buf[0:6], addr[:])
	copy(buf[6:22], key[:])
	return Command{OpCode: OpLinkKeyRequestReply, Params: buf}
}

// LinkKeyRequestNegativeReply encodes Link Key Request Negative Reply.
func LinkKeyRequestNegativeReply(addr Addr6) Command {
	return Command{OpCode: OpLinkKeyRequestNegativeReply, Params: append([]byte{}, addr[:]...)}
}

// IOCapabilityRequestReply encodes IO Capability Request Reply.
func IOCapabilityRequestReply(addr Addr6, ioCapability, oobPresent, authRequirements uint8) Command {
	buf := make([]byte, 9)
	copy(buf[0:6], addr[:])
	buf[6] = ioCapability
	buf[7] = oobPresent
	buf[8] = authRequirements
	return Command{OpCode: OpIOCapabilityRequestReply, Params: buf}
}

// IOCapabilityRequestNegativeReply encodes IO Capability Request Negative Reply.
func IOCapabilityRequestNegativeReply(addr Addr6, reason uint8) Command {
	buf := make([]byte, 7)
	copy(buf[0:6], addr[:])
	buf[6] = reason
	return Command{OpCode: OpIOCapabilityRequestNegReply, Params: buf}
}

// UserConfirmationRequestReply encodes User Confirmation Request Reply
// (positive == true) or Negative Reply (positive == false).
func UserConfirmationRequestReply(addr Addr6, positive bool) Command {
	op := OpUserConfirmationRequestReply
	if !positive {
		op = OpUserConfirmationRequestNeg
	}
	return Command{OpCode: op, Params: append([]byte{}, addr[:]...)}
}

// UserPasskeyRequestReply encodes User Passkey Request Reply.
func UserPasskeyRequestReply(addr Addr6, passkey uint32) Command {
	buf := make([]byte, 10)
	copy(buf[0:6], addr[:])
	binary.LittleEndian.PutUint32(buf[6:10], passkey)
	return Command{OpCode: OpUserPasskeyRequestReply, Params: buf}
}

// UserPasskeyRequestNegativeReply encodes User Passkey Request Negative Reply.
func UserPasskeyRequestNegativeReply(addr Addr6) Command {
	return Command{OpCode: OpUserPasskeyRequestNegReply, Params: append([]byte{}, addr[:]...)}
}

// AuthenticationRequested encodes Authentication Requested.
func AuthenticationRequested(handle uint16) Command {
	return handleOnly(OpAuthenticationRequested, handle)
}

// SetConnectionEncryption encodes Set Connection Encryption.
func SetConnectionEncryption(handle uint16, enable bool) Command {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], handle)
	if enable {
		buf[2] = 1
	}
	return Command{OpCode: OpSetConnectionEncryption, Params: buf}
}

// ReadEncryptionKeySize encodes Read Encryption Key Size.
func ReadEncryptionKeySize(handle uint16) Command {
	return handleOnly(OpReadEncryptionKeySize, handle)
}

// WriteScanEnable encodes Write Scan Enable (bit 0 = inquiry scan, bit 1 = page scan).
func WriteScanEnable(mask uint8) Command {
	return Command{OpCode: OpWriteScanEnable, Params: []byte{mask}}
}

// ReadScanEnable encodes Read Scan Enable (no parameters).
func ReadScanEnable() Command {
	return Command{OpCode: OpReadScanEnable}
}

// WritePageScanActivity encodes Write Page Scan Activity.
func WritePageScanActivity(interval, window uint16) Command {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], interval)
	binary.LittleEndian.PutUint16(buf[2:4], window)
	return Command{OpCode: OpWritePageScanActivity, Params: buf}
}

// WritePageScanType encodes Write Page Scan Type.
func WritePageScanType(scanType uint8) Command {
	return Command{OpCode: OpWritePageScanType, Params: []byte{scanType}}
}

// Inquiry encodes the Inquiry command.
func Inquiry(lap [3]byte, length, numResponses uint8) Command {
	buf := make([]byte, 5)
	copy(buf[0:3], lap[:])
	buf[3] = length
	buf[4] = numResponses
	return Command{OpCode: OpInquiry, Params: buf}
}

// InquiryCancel encodes Inquiry Cancel (no parameters).
func InquiryCancel() Command {
	return Command{OpCode: OpInquiryCancel}
}

// RejectSynchronousConnection encodes Reject Synchronous Connection.
func RejectSynchronousConnection(addr Addr6, reason uint8) Command {
	buf := make([]byte, 7)
	copy(buf[0:6], addr[:])
	buf[6] = reason
	return Command{OpCode: OpRejectSynchronousConnection, Params: buf}
}

// LESetScanParameters encodes LE Set Scan Parameters.
func LESetScanParameters(scanType uint8, interval, window uint16, ownAddrType, filterPolicy uint8) Command {
	buf := make([]byte, 7)
	buf[0] = scanType
	binary.LittleEndian.PutUint16(buf[1:3], interval)
	binary.LittleEndian.PutUint16(buf[3:5], window)
	buf[5] = ownAddrType
	buf[6] = filterPolicy
	return Command{OpCode: OpLESetScanParameters, Params: buf}
}

// LESetScanEnable encodes LE Set Scan Enable.
func LESetScanEnable(enable, filterDuplicates bool) Command {
	buf := make([]byte, 2)
	if enable {
		buf[0] = 1
	}
	if filterDuplicates {
		buf[1] = 1
	}
	return Command{OpCode: OpLESetScanEnable, Params: buf}
}

// -------------------------------------------------------------------------
// Event decoders
// -------------------------------------------------------------------------

// CommandCompleteEvent is the parsed Command Complete event.
type CommandCompleteEvent struct {
	NumHCICommandPackets uint8
	OpCode               OpCode
	ReturnParams         []byte
}

// DecodeCommandComplete parses a Command Complete event payload.
func DecodeCommandComplete(params []byte) (CommandCompleteEvent, error) {
	if len(params) < 3 {
		return CommandCompleteEvent{}, ErrShortPacket
	}
	return CommandCompleteEvent{
		NumHCICommandPackets: params[0],
		OpCode:               OpCode(binary.LittleEndian.Uint16(params[1:3])),
		ReturnParams:         params[3:],
	}, nil
}

// CommandStatusEvent is the parsed Command Status event.
type CommandStatusEvent struct {
	Status               uint8
	NumHCICommandPackets uint8
	OpCode               OpCode
}

// DecodeCommandStatus parses a Command Status event payload.
func DecodeCommandStatus(params []byte) (CommandStatusEvent, error) {
	if len(params) < 4 {
		return CommandStatusEvent{}, ErrShortPacket
	}
	return CommandStatusEvent{
		Status:               params[0],
		NumHCICommandPackets: params[1],
		OpCode:               OpCode(binary.LittleEndian.Uint16(params[2:4])),
	}, nil
}

// Link_Type values carried by Connection Request and Connection Complete,
// per the Bluetooth Core Spec / BlueZ convention: SCO is 0x00, ACL is
// 0x01, eSCO is 0x02.
const (
	LinkTypeSCO  uint8 = 0x00
	LinkTypeACL  uint8 = 0x01
	LinkTypeESCO uint8 = 0x02
)

// ConnectionCompleteEvent is the parsed Connection Complete event.
type ConnectionCompleteEvent struct {
	Status            uint8
	Handle            uint16
	BDAddr            Addr6
	LinkType          uint8
	EncryptionEnabled uint8
}

// DecodeConnectionComplete parses a Connection Complete event payload.
func DecodeConnectionComplete(params []byte) (ConnectionCompleteEvent, error) {
	if len(params) < 11 {
		return ConnectionCompleteEvent{}, ErrShortPacket
	}
	var ev ConnectionCompleteEvent
	ev.Status = params[0]
	ev.Handle = binary.LittleEndian.Uint16(params[1:3])
	copy(ev.BDAddr[:], params[3:9])
	ev.LinkType = params[9]
	ev.EncryptionEnabled = params[10]
	return ev, nil
}

// ConnectionRequestEvent is the parsed Connection Request event.
type ConnectionRequestEvent struct {
	BDAddr        Addr6
	ClassOfDevice [3]byte
	LinkType      uint8
}

// DecodeConnectionRequest parses a Connection Request event payload.
func DecodeConnectionRequest(params []byte) (ConnectionRequestEvent, error) {
	if len(params) < 10 {
		return ConnectionRequestEvent{}, ErrShortPacket
	}
	var ev ConnectionRequestEvent
	copy(ev.BDAddr[:], params[0:6])
	copy(ev.ClassOfDevice[:], params[6:9])
	ev.LinkType = params[9]
	return ev, nil
}

// DisconnectionCompleteEvent is the parsed Disconnection Complete event.
type DisconnectionCompleteEvent struct {
	Status uint8
	Handle uint16
	Reason uint8
}

// DecodeDisconnectionComplete parses a Disconnection Complete event payload.
func DecodeDisconnectionComplete(params []byte) (DisconnectionCompleteEvent, error) {
	if len(params) < 4 {
		return DisconnectionCompleteEvent{}, ErrShortPacket
	}
	return DisconnectionCompleteEvent{
		Status: params[0],
		Handle: binary.LittleEndian.Uint16(params[1:3]),
		Reason: params[3],
	}, nil
}

// RemoteNameRequestCompleteEvent is the parsed Remote Name Request
// Complete event. Name is the raw 248-byte field, unparsed.
type RemoteNameRequestCompleteEvent struct {
	Status uint8
	BDAddr Addr6
	Name   [248]byte
}

// DecodeRemoteNameRequestComplete parses a Remote Name Request Complete event.
func DecodeRemoteNameRequestComplete(params []byte) (RemoteNameRequestCompleteEvent, error) {
	if len(params) < 255 {
		return RemoteNameRequestCompleteEvent{}, ErrShortPacket
	}
	var ev RemoteNameRequestCompleteEvent
	ev.Status = params[0]
	copy(ev.BDAddr[:], params[1:7])
	copy(ev.Name[:], params[7:255])
	return ev, nil
}

// ParseRemoteName scans Name as a C-string: stop at the first zero byte,
// ignore trailing bytes, per the Interrogator's name-parsing policy.
func ParseRemoteName(name [248]byte) string {
	for i, b := range name {
		if b == 0 {
			return string(name[:i])
		}
	}
	return string(name[:])
}

// ReadRemoteVersionCompleteEvent is the parsed Read Remote Version
// Information Complete event.
type ReadRemoteVersionCompleteEvent struct {
	Status        uint8
	Handle        uint16
	LMPVersion    uint8
	Manufacturer  uint16
	LMPSubversion uint16
}

// DecodeReadRemoteVersionComplete parses the event payload.
func DecodeReadRemoteVersionComplete(params []byte) (ReadRemoteVersionCompleteEvent, error) {
	if len(params) < 8 {
		return ReadRemoteVersionCompleteEvent{}, ErrShortPacket
	}
	return ReadRemoteVersionCompleteEvent{
		Status:        params[0],
		Handle:        binary.LittleEndian.Uint16(params[1:3]),
		LMPVersion:    params[3],
		Manufacturer:  binary.LittleEndian.Uint16(params[4:6]),
		LMPSubversion: binary.LittleEndian.Uint16(params[6:8]),
	}, nil
}

// ReadRemoteSupportedFeaturesCompleteEvent is the parsed event carrying
// LMP feature page 0.
type ReadRemoteSupportedFeaturesCompleteEvent struct {
	Status   uint8
	Handle   uint16
	Features [8]byte
}

// DecodeReadRemoteSupportedFeaturesComplete parses the event payload.
func DecodeReadRemoteSupportedFeaturesComplete(params []byte) (ReadRemoteSupportedFeaturesCompleteEvent, error) {
	if len(params) < 11 {
		return ReadRemoteSupportedFeaturesCompleteEvent{}, ErrShortPacket
	}
	var ev ReadRemoteSupportedFeaturesCompleteEvent
	ev.Status = params[0]
	ev.Handle = binary.LittleEndian.Uint16(params[1:3])
	copy(ev.Features[:], params[3:11])
	return ev, nil
}

// ReadRemoteExtendedFeaturesCompleteEvent is the parsed event carrying
// one LMP extended feature page.
type ReadRemoteExtendedFeaturesCompleteEvent struct {
	Status        uint8
	Handle        uint16
	PageNumber    uint8
	MaxPageNumber uint8
	Features      [8]byte
}

// DecodeReadRemoteExtendedFeaturesComplete parses the event payload.
func DecodeReadRemoteExtendedFeaturesComplete(params []byte) (ReadRemoteExtendedFeaturesCompleteEvent, error) {
	if len(params) < 13 {
		return ReadRemoteExtendedFeaturesCompleteEvent{}, ErrShortPacket
	}
	var ev ReadRemoteExtendedFeaturesCompleteEvent
	ev.Status = params[0]
	ev.Handle = binary.LittleEndian.Uint16(params[1:3])
	ev.PageNumber = params[3]
	ev.MaxPageNumber = params[4]
	copy(ev.Features[:], params[5:13])
	return ev, nil
}

// LinkKeyRequestEvent is the parsed Link Key Request event.
type LinkKeyRequestEvent struct {
	BDAddr Addr6
}

// DecodeLinkKeyRequest parses the event payload.
func DecodeLinkKeyRequest(params []byte) (LinkKeyRequestEvent, error) {
	if len(params) < 6 {
		return LinkKeyRequestEvent{}, ErrShortPacket
	}
	var ev LinkKeyRequestEvent
	copy(ev.BDAddr[:], params[0:6])
	return ev, nil
}

// LinkKeyNotificationEvent is the parsed Link Key Notification event.
type LinkKeyNotificationEvent struct {
	BDAddr  Addr6
	LinkKey [16]byte
	KeyType uint8
}

// DecodeLinkKeyNotification parses the event payload.
func DecodeLinkKeyNotification(params []byte) (LinkKeyNotificationEvent, error) {
	if len(params) < 23 {
		return LinkKeyNotificationEvent{}, ErrShortPacket
	}
	var ev LinkKeyNotificationEvent
	copy(ev.BDAddr[:], params[0:6])
	copy(ev.LinkKey[:], params[6:22])
	ev.KeyType = params[22]
	return ev, nil
}

// IOCapabilityRequestEvent is the parsed IO Capability Request event.
type IOCapabilityRequestEvent struct {
	BDAddr Addr6
}

// DecodeIOCapabilityRequest parses the event payload.
func DecodeIOCapabilityRequest(params []byte) (IOCapabilityRequestEvent, error) {
	if len(params) < 6 {
		return IOCapabilityRequestEvent{}, ErrShortPacket
	}
	var ev IOCapabilityRequestEvent
	copy(ev.BDAddr[:], params[0:6])
	return ev, nil
}

// IOCapabilityResponseEvent is the parsed IO Capability Response event
// (the peer's own capability, observed by us).
type IOCapabilityResponseEvent struct {
	BDAddr                     Addr6
	IOCapability               uint8
	OOBDataPresent             uint8
	AuthenticationRequirements uint8
}

// DecodeIOCapabilityResponse parses the event payload.
func DecodeIOCapabilityResponse(params []byte) (IOCapabilityResponseEvent, error) {
	if len(params) < 9 {
		return IOCapabilityResponseEvent{}, ErrShortPacket
	}
	var ev IOCapabilityResponseEvent
	copy(ev.BDAddr[:], params[0:6])
	ev.IOCapability = params[6]
	ev.OOBDataPresent = params[7]
	ev.AuthenticationRequirements = params[8]
	return ev, nil
}

// UserConfirmationRequestEvent is the parsed User Confirmation Request event.
type UserConfirmationRequestEvent struct {
	BDAddr       Addr6
	NumericValue uint32
}

// DecodeUserConfirmationRequest parses the event payload.
func DecodeUserConfirmationRequest(params []byte) (UserConfirmationRequestEvent, error) {
	if len(params) < 10 {
		return UserConfirmationRequestEvent{}, ErrShortPacket
	}
	var ev UserConfirmationRequestEvent
	copy(ev.BDAddr[:], params[0:6])
	ev.NumericValue = binary.LittleEndian.Uint32(params[6:10])
	return ev, nil
}

// UserPasskeyRequestEvent is the parsed User Passkey Request event.
type UserPasskeyRequestEvent struct {
	BDAddr Addr6
}

// DecodeUserPasskeyRequest parses the event payload.
func DecodeUserPasskeyRequest(params []byte) (UserPasskeyRequestEvent, error) {
	if len(params) < 6 {
		return UserPasskeyRequestEvent{}, ErrShortPacket
	}
	var ev UserPasskeyRequestEvent
	copy(ev.BDAddr[:], params[0:6])
	return ev, nil
}

// UserPasskeyNotificationEvent is the parsed User Passkey Notification event.
type UserPasskeyNotificationEvent struct {
	BDAddr  Addr6
	Passkey uint32
}

// DecodeUserPasskeyNotification parses the event payload.
func DecodeUserPasskeyNotification(params []byte) (UserPasskeyNotificationEvent, error) {
	if len(params) < 10 {
		return UserPasskeyNotificationEvent{}, ErrShortPacket
	}
	var ev UserPasskeyNotificationEvent
	copy(ev.BDAddr[:], params[0:6])
	ev.Passkey = binary.LittleEndian.Uint32(params[6:10])
	return ev, nil
}

// SimplePairingCompleteEvent is the parsed Simple Pairing Complete event.
type SimplePairingCompleteEvent struct {
	Status uint8
	BDAddr Addr6
}

// DecodeSimplePairingComplete parses the event payload.
func DecodeSimplePairingComplete(params []byte) (SimplePairingCompleteEvent, error) {
	if len(params) < 7 {
		return SimplePairingCompleteEvent{}, ErrShortPacket
	}
	var ev SimplePairingCompleteEvent
	ev.Status = params[0]
	copy(ev.BDAddr[:], params[1:7])
	return ev, nil
}

// AuthenticationCompleteEvent is the parsed Authentication Complete event.
type AuthenticationCompleteEvent struct {
	Status uint8
	Handle uint16
}

// DecodeAuthenticationComplete parses the event payload.
func DecodeAuthenticationComplete(params []byte) (AuthenticationCompleteEvent, error) {
	if len(params) < 3 {
		return AuthenticationCompleteEvent{}, ErrShortPacket
	}
	return AuthenticationCompleteEvent{
		Status: params[0],
		Handle: binary.LittleEndian.Uint16(params[1:3]),
	}, nil
}

// EncryptionChangeEvent is the parsed Encryption Change event.
type EncryptionChangeEvent struct {
	Status  uint8
	Handle  uint16
	Enabled uint8
}

// DecodeEncryptionChange parses the event payload.
func DecodeEncryptionChange(params []byte) (EncryptionChangeEvent, error) {
	if len(params) < 4 {
		return EncryptionChangeEvent{}, ErrShortPacket
	}
	return EncryptionChangeEvent{
		Status:  params[0],
		Handle:  binary.LittleEndian.Uint16(params[1:3]),
		Enabled: params[3],
	}, nil
}

// InquiryCompleteEvent is the parsed Inquiry Complete event.
type InquiryCompleteEvent struct {
	Status uint8
}

// DecodeInquiryComplete parses the event payload.
func DecodeInquiryComplete(params []byte) (InquiryCompleteEvent, error) {
	if len(params) < 1 {
		return InquiryCompleteEvent{}, ErrShortPacket
	}
	return InquiryCompleteEvent{Status: params[0]}, nil
}

// InquiryResultItem is one response within an Inquiry Result event.
type InquiryResultItem struct {
	BDAddr                Addr6
	PageScanRepMode       uint8
	ClassOfDevice         [3]byte
	ClockOffset           uint16
}

// DecodeInquiryResult parses a (possibly multi-response) Inquiry Result event.
func DecodeInquiryResult(params []byte) ([]InquiryResultItem, error) {
	if len(params) < 1 {
		return nil, ErrShortPacket
	}
	n := int(params[0])
	const itemSize = 14
	if len(params) < 1+n*itemSize {
		return nil, ErrShortPacket
	}
	items := make([]InquiryResultItem, n)
	for i := 0; i < n; i++ {
		off := 1 + i*itemSize
		copy(items[i].BDAddr[:], params[off:off+6])
		items[i].PageScanRepMode = params[off+6]
		copy(items[i].ClassOfDevice[:], params[off+9:off+12])
		items[i].ClockOffset = binary.LittleEndian.Uint16(params[off+12 : off+14])
	}
	return items, nil
}

// InquiryResultRSSIItem is one response within an Inquiry Result with
// RSSI event.
type InquiryResultRSSIItem struct {
	BDAddr          Addr6
	PageScanRepMode uint8
	ClassOfDevice   [3]byte
	ClockOffset     uint16
	RSSI            int8
}

// DecodeInquiryResultWithRSSI parses the event payload.
func DecodeInquiryResultWithRSSI(params []byte) ([]InquiryResultRSSIItem, error) {
	if len(params) < 1 {
		return nil, ErrShortPacket
	}
	n := int(params[0])
	const itemSize = 14
	if len(params) < 1+n*itemSize {
		return nil, ErrShortPacket
	}
	items := make([]InquiryResultRSSIItem, n)
	for i := 0; i < n; i++ {
		off := 1 + i*itemSize
		copy(items[i].BDAddr[:], params[off:off+6])
		items[i].PageScanRepMode = params[off+6]
		copy(items[i].ClassOfDevice[:], params[off+8:off+11])
		items[i].ClockOffset = binary.LittleEndian.Uint16(params[off+11 : off+13])
		items[i].RSSI = int8(params[off+13])
	}
	return items, nil
}

// ExtendedInquiryResultEvent is the parsed Extended Inquiry Result event
// (always exactly one response, carrying raw EIR data).
type ExtendedInquiryResultEvent struct {
	BDAddr          Addr6
	PageScanRepMode uint8
	ClassOfDevice   [3]byte
	ClockOffset     uint16
	RSSI            int8
	EIRData         []byte
}

// DecodeExtendedInquiryResult parses the event payload.
func DecodeExtendedInquiryResult(params []byte) (ExtendedInquiryResultEvent, error) {
	if len(params) < 254 {
		return ExtendedInquiryResultEvent{}, ErrShortPacket
	}
	var ev ExtendedInquiryResultEvent
	copy(ev.BDAddr[:], params[1:7])
	ev.PageScanRepMode = params[7]
	copy(ev.ClassOfDevice[:], params[9:12])
	ev.ClockOffset = binary.LittleEndian.Uint16(params[12:14])
	ev.RSSI = int8(params[14])
	ev.EIRData = append([]byte{}, params[15:254]...)
	return ev, nil
}

// SynchronousConnectionCompleteEvent is the parsed SCO/eSCO Connection
// Complete event.
type SynchronousConnectionCompleteEvent struct {
	Status   uint8
	Handle   uint16
	BDAddr   Addr6
	LinkType uint8
}

// DecodeSynchronousConnectionComplete parses the event payload.
func DecodeSynchronousConnectionComplete(params []byte) (SynchronousConnectionCompleteEvent, error) {
	if len(params) < 10 {
		return SynchronousConnectionCompleteEvent{}, ErrShortPacket
	}
	var ev SynchronousConnectionCompleteEvent
	ev.Status = params[0]
	ev.Handle = binary.LittleEndian.Uint16(params[1:3])
	copy(ev.BDAddr[:], params[3:9])
	ev.LinkType = params[9]
	return ev, nil
}

// RoleChangeEvent is the parsed Role Change event.
type RoleChangeEvent struct {
	Status  uint8
	BDAddr  Addr6
	NewRole uint8
}

// DecodeRoleChange parses the event payload.
func DecodeRoleChange(params []byte) (RoleChangeEvent, error) {
	if len(params) < 8 {
		return RoleChangeEvent{}, ErrShortPacket
	}
	var ev RoleChangeEvent
	ev.Status = params[0]
	copy(ev.BDAddr[:], params[1:7])
	ev.NewRole = params[7]
	return ev, nil
}

// LEAdvertisingReportItem is one report within an LE Advertising Report
// meta-event.
type LEAdvertisingReportItem struct {
	EventType   uint8
	AddressType uint8
	Address     Addr6
	Data        []byte
	RSSI        int8
}

// DecodeLEAdvertisingReport parses an LE Meta Event payload known to
// carry the Advertising Report sub-event (first byte == LESubEventAdvertisingReport).
func DecodeLEAdvertisingReport(params []byte) ([]LEAdvertisingReportItem, error) {
	if len(params) < 2 {
		return nil, ErrShortPacket
	}
	n := int(params[1])
	off := 2
	eventTypes := make([]uint8, n)
	addrTypes := make([]uint8, n)
	addrs := make([]Addr6, n)
	for i := 0; i < n; i++ {
		if off >= len(params) {
			return nil, ErrShortPacket
		}
		eventTypes[i] = params[off]
		off++
	}
	for i := 0; i < n; i++ {
		if off >= len(params) {
			return nil, ErrShortPacket
		}
		addrTypes[i] = params[off]
		off++
	}
	for i := 0; i < n; i++ {
		if off+6 > len(params) {
			return nil, ErrShortPacket
		}
		copy(addrs[i][:], params[off:off+6])
		off += 6
	}
	lengths := make([]uint8, n)
	for i := 0; i < n; i++ {
		if off >= len(params) {
			return nil, ErrShortPacket
		}
		lengths[i] = params[off]
		off++
	}
	items := make([]LEAdvertisingReportItem, n)
	for i := 0; i < n; i++ {
		dl := int(lengths[i])
		if off+dl > len(params) {
			return nil, ErrShortPacket
		}
		items[i] = LEAdvertisingReportItem{
			EventType:   eventTypes[i],
			AddressType: addrTypes[i],
			Address:     addrs[i],
			Data:        append([]byte{}, params[off:off+dl]...),
		}
		off += dl
	}
	for i := 0; i < n; i++ {
		if off >= len(params) {
			return nil, ErrShortPacket
		}
		items[i].RSSI = int8(params[off])
		off++
	}
	return items, nil
}
