// Package protocol provides constants and types for message encoding/decoding in the GridClash protocol.
// Defines the protocol tag, version, header size, message types and payload status codes.
package protocol

// =============================================================================
// Protocol Constants
// =============================================================================

// ProtocolTag: 4-byte ASCII identifier opening every datagram.
var ProtocolTag = [4]byte{'G', 'C', 'P', '1'}

// CurrentVersion: GridClash protocol version. Bumped on breaking payload changes;
// the message type table below is only valid for this version.
const CurrentVersion uint8 = 0x01

// HeaderSize: fixed size (bytes) of the encoded Header.
const HeaderSize = 28

// MaxPayloadSize: largest payload expressible by the 2-byte length field.
const MaxPayloadSize = 0xFFFF

// =============================================================================
// Message Types
// =============================================================================

// MessageType: semantic type of a message payload.
type MessageType uint8

const (
	MessageTypeJoinRequest  MessageType = 0x01 // Client asks for a player slot
	MessageTypeSnapshot     MessageType = 0x02 // Periodic full-grid state
	MessageTypeEvent        MessageType = 0x03 // Cell claim
	MessageTypeGameOver     MessageType = 0x04 // Round finished
	MessageTypeJoinResponse MessageType = 0x05 // Slot assignment or rejection
	MessageTypeSnapshotAck  MessageType = 0x06 // Echo of a snapshot timestamp for RTT
	MessageTypeEventAck     MessageType = 0x07 // Arbitration result for one event
)

// String returns the string representation of MessageType.
func (m MessageType) String() string {
	switch m {
	case MessageTypeJoinRequest:
		return "JoinRequest"
	case MessageTypeSnapshot:
		return "Snapshot"
	case MessageTypeEvent:
		return "Event"
	case MessageTypeGameOver:
		return "GameOver"
	case MessageTypeJoinResponse:
		return "JoinResponse"
	case MessageTypeSnapshotAck:
		return "SnapshotAck"
	case MessageTypeEventAck:
		return "EventAck"
	default:
		return "Unrecognized"
	}
}

// IsValid returns true if the MessageType is known to this protocol version.
func (m MessageType) IsValid() bool {
	return m >= MessageTypeJoinRequest && m <= MessageTypeEventAck
}

// =============================================================================
// Event Actions
// =============================================================================

// Action: what an event asks the server to do with its target cell.
type Action uint8

const (
	ActionNone  Action = iota // Uninitialized/default
	ActionClaim               // Take ownership of an empty cell
)

// String returns the string representation of Action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionClaim:
		return "Claim"
	default:
		return "InvalidAction"
	}
}

// =============================================================================
// Join Status
// =============================================================================

// JoinStatus: outcome carried by a join-response.
type JoinStatus uint8

const (
	JoinAccepted   JoinStatus = iota // Slot assigned
	JoinServerFull                   // All slots taken
)

// String returns the string representation of JoinStatus.
func (s JoinStatus) String() string {
	switch s {
	case JoinAccepted:
		return "Accepted"
	case JoinServerFull:
		return "ServerFull"
	default:
		return "InvalidJoinStatus"
	}
}

// =============================================================================
// Event Ack Status
// =============================================================================

// AckStatus: arbitration result carried by an event-ack.
type AckStatus uint8

const (
	AckApplied   AckStatus = iota // Cell claimed for the sender
	AckCellOwned                  // Cell was already owned, no change
	AckRoundOver                  // Round completed before the event arrived
)

// String returns the string representation of AckStatus.
func (s AckStatus) String() string {
	switch s {
	case AckApplied:
		return "Applied"
	case AckCellOwned:
		return "CellOwned"
	case AckRoundOver:
		return "RoundOver"
	default:
		return "InvalidAckStatus"
	}
}
