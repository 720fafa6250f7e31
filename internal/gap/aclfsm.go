package gap

import "fmt"

// ACLState is a Connection's lifecycle state (§4.2.2). It is strictly
// more fine-grained than the Peer's public ConnectionState, which is
// derived from it via MapToConnectionState.
type ACLState uint8

const (
	ACLNotConnected ACLState = iota
	ACLConnecting
	ACLInterrogating
	ACLAvailable
	ACLPairing
	ACLDisconnecting
)

func (s ACLState) String() string {
	switch s {
	case ACLNotConnected:
		return "not-connected"
	case ACLConnecting:
		return "connecting"
	case ACLInterrogating:
		return "interrogating"
	case ACLAvailable:
		return "available"
	case ACLPairing:
		return "pairing"
	case ACLDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("acl-state(%d)", uint8(s))
	}
}

// MapToConnectionState implements the Peer.connection_state mapping
// named in §4.2.2: Connecting/Interrogating/Pairing -> Initializing,
// Available -> Connected, else NotConnected.
func (s ACLState) MapToConnectionState() ConnectionState {
	switch s {
	case ACLConnecting, ACLInterrogating, ACLPairing:
		return ConnectionStateInitializing
	case ACLAvailable:
		return ConnectionStateConnected
	default:
		return ConnectionStateNotConnected
	}
}

// ACLEvent is an input to the ACL lifecycle transition table.
type ACLEvent uint8

const (
	ACLEventInboundAccepted ACLEvent = iota
	ACLEventOutboundCreateIssued
	ACLEventConnCompleteOK
	ACLEventConnCompleteFail
	ACLEventInterrogateOK
	ACLEventInterrogateFail
	ACLEventPairingRequested
	ACLEventPairingSuccess
	ACLEventPairingFailure
	ACLEventDisconnectRequested
	ACLEventDisconnectionComplete
)

func (e ACLEvent) String() string {
	names := [...]string{
		"inbound-accepted", "outbound-create-issued", "conn-complete-ok",
		"conn-complete-fail", "interrogate-ok", "interrogate-fail",
		"pairing-requested", "pairing-success", "pairing-failure",
		"disconnect-requested", "disconnection-complete",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return fmt.Sprintf("acl-event(%d)", uint8(e))
}

// ACLAction is a side effect the Connection coroutine executes after a
// transition. Actions are returned by ApplyACLEvent, never performed by
// it: the table stays pure, exactly as the sibling FSM.
type ACLAction uint8

const (
	ActionNone ACLAction = iota
	ActionIssueHCIConnect
	ActionStartInterrogation
	ActionStartPairing
	ActionIssueDisconnect
	ActionReportConnectError
	ActionReportInterrogateError
	ActionReportPairingError
	ActionFlushAvailableCallers
	ActionNotifyPeerState
)

func (a ACLAction) String() string {
	names := [...]string{
		"none", "issue-hci-connect", "start-interrogation", "start-pairing",
		"issue-disconnect", "report-connect-error", "report-interrogate-error",
		"report-pairing-error", "flush-available-callers", "notify-peer-state",
	}
	if int(a) < len(names) {
		return names[a]
	}
	return fmt.Sprintf("acl-action(%d)", uint8(a))
}

type aclStateEvent struct {
	state ACLState
	event ACLEvent
}

type aclTransition struct {
	newState ACLState
	actions  []ACLAction
}

// aclFSMTable is the pure transition table for §4.2.2's ACL lifecycle
// diagram. Unlisted (state, event) pairs are ignored: ApplyACLEvent
// returns Changed=false.
//
//nolint:gochecknoglobals // immutable lookup table, mirrors fsm.go's fsmTable.
var aclFSMTable = map[aclStateEvent]aclTransition{
	{ACLNotConnected, ACLEventInboundAccepted}: {
		ACLConnecting, []ACLAction{ActionNotifyPeerState},
	},
	{ACLNotConnected, ACLEventOutboundCreateIssued}: {
		ACLConnecting, []ACLAction{ActionIssueHCIConnect, ActionNotifyPeerState},
	},
	{ACLConnecting, ACLEventConnCompleteOK}: {
		ACLInterrogating, []ACLAction{ActionStartInterrogation, ActionNotifyPeerState},
	},
	{ACLConnecting, ACLEventConnCompleteFail}: {
		ACLNotConnected, []ACLAction{ActionReportConnectError, ActionNotifyPeerState},
	},
	{ACLInterrogating, ACLEventInterrogateOK}: {
		ACLAvailable, []ACLAction{ActionFlushAvailableCallers, ActionNotifyPeerState},
	},
	{ACLInterrogating, ACLEventInterrogateFail}: {
		ACLDisconnecting, []ACLAction{ActionReportInterrogateError, ActionIssueDisconnect, ActionNotifyPeerState},
	},
	{ACLAvailable, ACLEventPairingRequested}: {
		ACLPairing, []ACLAction{ActionStartPairing, ActionNotifyPeerState},
	},
	{ACLPairing, ACLEventPairingSuccess}: {
		ACLAvailable, []ACLAction{ActionFlushAvailableCallers, ActionNotifyPeerState},
	},
	{ACLPairing, ACLEventPairingFailure}: {
		ACLDisconnecting, []ACLAction{ActionReportPairingError, ActionIssueDisconnect, ActionNotifyPeerState},
	},
}

// isTerminalEvent reports the events that close out any state to NotConnected regardless of where
// the Connection currently sits, matching "any-connected -> local
// Disconnect or remote disc-complete -> NotConnected".
func isTerminalEvent(e ACLEvent) bool {
	return e == ACLEventDisconnectRequested || e == ACLEventDisconnectionComplete
}

// ACLFSMResult is the outcome of applying a single event to the table.
type ACLFSMResult struct {
	OldState ACLState
	NewState ACLState
	Actions  []ACLAction
	Changed  bool
}

// ApplyACLEvent is the pure transition function: given the current state
// and an event, returns the new state and the actions the caller must
// execute. It has no side effects and does not itself touch a Connection.
func ApplyACLEvent(current ACLState, event ACLEvent) ACLFSMResult {
	if isTerminalEvent(event) && current != ACLNotConnected {
		actions := []ACLAction{ActionNotifyPeerState}
		if event == ACLEventDisconnectRequested {
			actions = append([]ACLAction{ActionIssueDisconnect}, actions...)
		}
		return ACLFSMResult{
			OldState: current,
			NewState: ACLNotConnected,
			Actions:  actions,
			Changed:  true,
		}
	}

	t, ok := aclFSMTable[aclStateEvent{current, event}]
	if !ok {
		return ACLFSMResult{OldState: current, NewState: current, Changed: false}
	}
	return ACLFSMResult{
		OldState: current,
		NewState: t.newState,
		Actions:  t.actions,
		Changed:  true,
	}
}
