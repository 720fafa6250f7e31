package hcicodec

import "fmt"

// OpCode is a 16-bit HCI command opcode (OGF<<10 | OCF).
type OpCode uint16

// Command opcodes used by the core subsystems (non-exhaustive; matches
// the surface enumerated by the GAP core specification's External
// Interfaces section).
const (
	OpWriteScanEnable               OpCode = 0x0C1A
	OpReadScanEnable                OpCode = 0x0C19
	OpWritePageScanActivity         OpCode = 0x0C1C
	OpWritePageScanType             OpCode = 0x0C47
	OpCreateConnection              OpCode = 0x0405
	OpCreateConnectionCancel        OpCode = 0x0408
	OpAcceptConnectionRequest       OpCode = 0x0409
	OpRejectConnectionRequest       OpCode = 0x040A
	OpDisconnect                    OpCode = 0x0406
	OpRemoteNameRequest             OpCode = 0x0419
	OpReadRemoteVersionInformation  OpCode = 0x041D
	OpReadRemoteSupportedFeatures   OpCode = 0x041B
	OpReadRemoteExtendedFeatures    OpCode = 0x041C
	OpLinkKeyRequestReply           OpCode = 0x040B
	OpLinkKeyRequestNegativeReply   OpCode = 0x040C
	OpIOCapabilityRequestReply      OpCode = 0x042B
	OpIOCapabilityRequestNegReply   OpCode = 0x0434
	OpUserConfirmationRequestReply  OpCode = 0x042C
	OpUserConfirmationRequestNeg    OpCode = 0x042D
	OpUserPasskeyRequestReply       OpCode = 0x042E
	OpUserPasskeyRequestNegReply    OpCode = 0x042F
	OpAuthenticationRequested       OpCode = 0x0411
	OpSetConnectionEncryption       OpCode = 0x0413
	OpReadEncryptionKeySize         OpCode = 0x1408 // OGF 0x05 (status) OCF 0x08
	OpInquiry                       OpCode = 0x0401
	OpInquiryCancel                 OpCode = 0x0402
	OpEnhancedSetupSyncConnection   OpCode = 0x043D
	OpEnhancedAcceptSyncConnection  OpCode = 0x043E
	OpRejectSynchronousConnection   OpCode = 0x042A
	OpLESetScanParameters           OpCode = 0x200B
	OpLESetScanEnable               OpCode = 0x200C
)

// EventCode is the one-byte HCI event code.
type EventCode uint8

const (
	EvCommandComplete               EventCode = 0x0E
	EvCommandStatus                 EventCode = 0x0F
	EvConnectionComplete            EventCode = 0x03
	EvConnectionRequest             EventCode = 0x04
	EvDisconnectionComplete         EventCode = 0x05
	EvRemoteNameRequestComplete     EventCode = 0x07
	EvReadRemoteVersionComplete     EventCode = 0x0C
	EvReadRemoteSupportedFeatures   EventCode = 0x0B
	EvReadRemoteExtendedFeatures    EventCode = 0x23
	EvLinkKeyRequest                EventCode = 0x17
	EvLinkKeyNotification           EventCode = 0x18
	EvIOCapabilityRequest           EventCode = 0x31
	EvIOCapabilityResponse          EventCode = 0x32
	EvUserConfirmationRequest       EventCode = 0x33
	EvUserPasskeyRequest            EventCode = 0x34
	EvUserPasskeyNotification       EventCode = 0x3B
	EvSimplePairingComplete         EventCode = 0x36
	EvAuthenticationComplete        EventCode = 0x06
	EvEncryptionChange              EventCode = 0x08
	EvInquiryResult                 EventCode = 0x02
	EvInquiryResultWithRSSI         EventCode = 0x22
	EvExtendedInquiryResult         EventCode = 0x2F
	EvInquiryComplete               EventCode = 0x01
	EvSynchronousConnectionComplete EventCode = 0x2C
	EvRoleChange                    EventCode = 0x12
	EvLEMeta                        EventCode = 0x3E
)

// LE meta sub-events, carried as the first byte of an EvLEMeta payload.
const (
	LESubEventAdvertisingReport EventCode = 0x02
)

func (c OpCode) String() string {
	return fmt.Sprintf("opcode(0x%04x)", uint16(c))
}

func (c EventCode) String() string {
	return fmt.Sprintf("event(0x%02x)", uint8(c))
}
