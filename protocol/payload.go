package protocol

import (
	"encoding"
	"encoding/binary"
	"fmt"

	"github.com/Jdcabreradev/gridclash/grid"
)

// Body is a type-specific payload. Each implementation knows its own
// message type and fixed wire layout.
type Body interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	Type() MessageType
}

var (
	_ Body = (*JoinRequest)(nil)
	_ Body = (*JoinResponse)(nil)
	_ Body = (*Snapshot)(nil)
	_ Body = (*Event)(nil)
	_ Body = (*GameOver)(nil)
	_ Body = (*SnapshotAck)(nil)
	_ Body = (*EventAck)(nil)
	_ Body = (*Unrecognized)(nil)
)

// Payload sizes per message type.
const (
	joinRequestSize  = 0
	joinResponseSize = 1 + 1 + grid.Cells
	snapshotSize     = 1 + 4 + grid.Cells
	eventSize        = 1 + 1 + 2 + 8
	gameOverSize     = 1 + 4 + grid.MaxPlayers
	snapshotAckSize  = 8 + 8
	eventAckSize     = 4 + 1
)

func checkSize(t MessageType, data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrMalformedPayload, t, len(data), want)
	}
	return nil
}

func putGrid(dst []byte, g *grid.Grid) {
	for i, o := range g {
		dst[i] = byte(o)
	}
}

func readGrid(src []byte, g *grid.Grid) error {
	for i := range g {
		o := grid.Owner(src[i])
		if !o.IsValid() {
			return fmt.Errorf("%w: cell %d has owner %d", ErrMalformedPayload, i, src[i])
		}
		g[i] = o
	}
	return nil
}

// =============================================================================
// Join
// =============================================================================

// JoinRequest asks the server for a player slot. It has no payload.
type JoinRequest struct{}

func (*JoinRequest) Type() MessageType { return MessageTypeJoinRequest }

func (*JoinRequest) MarshalBinary() ([]byte, error) { return []byte{}, nil }

func (b *JoinRequest) UnmarshalBinary(data []byte) error {
	return checkSize(b.Type(), data, joinRequestSize)
}

// JoinResponse answers a join request. Slot is zero when Status is JoinServerFull.
type JoinResponse struct {
	Status JoinStatus
	Slot   grid.Owner
	Grid   grid.Grid
}

func (*JoinResponse) Type() MessageType { return MessageTypeJoinResponse }

func (b *JoinResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, joinResponseSize)
	buf[0] = byte(b.Status)
	buf[1] = byte(b.Slot)
	putGrid(buf[2:], &b.Grid)
	return buf, nil
}

func (b *JoinResponse) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, joinResponseSize); err != nil {
		return err
	}
	b.Status = JoinStatus(data[0])
	if b.Status > JoinServerFull {
		return fmt.Errorf("%w: join status %d", ErrMalformedPayload, data[0])
	}
	b.Slot = grid.Owner(data[1])
	if !b.Slot.IsValid() {
		return fmt.Errorf("%w: join slot %d", ErrMalformedPayload, data[1])
	}
	return readGrid(data[2:], &b.Grid)
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot carries the full board. Its id and generation time travel in the header.
type Snapshot struct {
	Roster grid.Roster
	Round  uint32
	Grid   grid.Grid
}

func (*Snapshot) Type() MessageType { return MessageTypeSnapshot }

func (b *Snapshot) MarshalBinary() ([]byte, error) {
	buf := make([]byte, snapshotSize)
	buf[0] = byte(b.Roster)
	binary.BigEndian.PutUint32(buf[1:], b.Round)
	putGrid(buf[5:], &b.Grid)
	return buf, nil
}

func (b *Snapshot) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, snapshotSize); err != nil {
		return err
	}
	b.Roster = grid.Roster(data[0])
	b.Round = binary.BigEndian.Uint32(data[1:])
	return readGrid(data[5:], &b.Grid)
}

// =============================================================================
// Event
// =============================================================================

// Event asks the server to act on a cell. The per-player sequence number is
// the header Sequence; ClientTime is diagnostic only.
type Event struct {
	Slot       grid.Owner
	Action     Action
	Cell       uint16 // Row-major index; bounds are checked by the arbiter
	ClientTime uint64 // Milliseconds since epoch on the client clock
}

func (*Event) Type() MessageType { return MessageTypeEvent }

// Coord returns the target cell as a coordinate.
func (b *Event) Coord() grid.Coord {
	return grid.CoordOf(int(b.Cell))
}

func (b *Event) MarshalBinary() ([]byte, error) {
	buf := make([]byte, eventSize)
	buf[0] = byte(b.Slot)
	buf[1] = byte(b.Action)
	binary.BigEndian.PutUint16(buf[2:], b.Cell)
	binary.BigEndian.PutUint64(buf[4:], b.ClientTime)
	return buf, nil
}

func (b *Event) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, eventSize); err != nil {
		return err
	}
	b.Slot = grid.Owner(data[0])
	b.Action = Action(data[1])
	b.Cell = binary.BigEndian.Uint16(data[2:])
	b.ClientTime = binary.BigEndian.Uint64(data[4:])
	return nil
}

// =============================================================================
// Game over
// =============================================================================

// GameOver announces the end of a round. Claims holds the final cell count
// per slot, index 0 for slot 1.
type GameOver struct {
	Winner grid.Owner
	Round  uint32
	Claims [grid.MaxPlayers]uint8
}

func (*GameOver) Type() MessageType { return MessageTypeGameOver }

func (b *GameOver) MarshalBinary() ([]byte, error) {
	buf := make([]byte, gameOverSize)
	buf[0] = byte(b.Winner)
	binary.BigEndian.PutUint32(buf[1:], b.Round)
	copy(buf[5:], b.Claims[:])
	return buf, nil
}

func (b *GameOver) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, gameOverSize); err != nil {
		return err
	}
	b.Winner = grid.Owner(data[0])
	if !b.Winner.IsValid() {
		return fmt.Errorf("%w: winner %d", ErrMalformedPayload, data[0])
	}
	b.Round = binary.BigEndian.Uint32(data[1:])
	copy(b.Claims[:], data[5:])
	return nil
}

// =============================================================================
// Acknowledgments
// =============================================================================

// SnapshotAck echoes the server timestamp of an accepted snapshot together
// with the client's receive time. The acknowledged id is the header SnapshotID.
type SnapshotAck struct {
	ServerTime uint64
	ReceivedAt uint64
}

func (*SnapshotAck) Type() MessageType { return MessageTypeSnapshotAck }

func (b *SnapshotAck) MarshalBinary() ([]byte, error) {
	buf := make([]byte, snapshotAckSize)
	binary.BigEndian.PutUint64(buf[0:], b.ServerTime)
	binary.BigEndian.PutUint64(buf[8:], b.ReceivedAt)
	return buf, nil
}

func (b *SnapshotAck) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, snapshotAckSize); err != nil {
		return err
	}
	b.ServerTime = binary.BigEndian.Uint64(data[0:])
	b.ReceivedAt = binary.BigEndian.Uint64(data[8:])
	return nil
}

// EventAck reports how the server arbitrated one event.
type EventAck struct {
	EventSeq uint32
	Status   AckStatus
}

func (*EventAck) Type() MessageType { return MessageTypeEventAck }

func (b *EventAck) MarshalBinary() ([]byte, error) {
	buf := make([]byte, eventAckSize)
	binary.BigEndian.PutUint32(buf[0:], b.EventSeq)
	buf[4] = byte(b.Status)
	return buf, nil
}

func (b *EventAck) UnmarshalBinary(data []byte) error {
	if err := checkSize(b.Type(), data, eventAckSize); err != nil {
		return err
	}
	b.EventSeq = binary.BigEndian.Uint32(data[0:])
	b.Status = AckStatus(data[4])
	if b.Status > AckRoundOver {
		return fmt.Errorf("%w: ack status %d", ErrMalformedPayload, data[4])
	}
	return nil
}

// =============================================================================
// Unrecognized
// =============================================================================

// Unrecognized holds a payload whose type code this version does not know.
// Receivers drop it; it re-encodes to the exact bytes it was decoded from.
type Unrecognized struct {
	Code MessageType
	Raw  []byte
}

func (b *Unrecognized) Type() MessageType { return b.Code }

func (b *Unrecognized) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(b.Raw))
	copy(out, b.Raw)
	return out, nil
}

func (b *Unrecognized) UnmarshalBinary(data []byte) error {
	b.Raw = make([]byte, len(data))
	copy(b.Raw, data)
	return nil
}

// newBody returns an empty body for t, or an Unrecognized placeholder.
func newBody(t MessageType) Body {
	switch t {
	case MessageTypeJoinRequest:
		return &JoinRequest{}
	case MessageTypeJoinResponse:
		return &JoinResponse{}
	case MessageTypeSnapshot:
		return &Snapshot{}
	case MessageTypeEvent:
		return &Event{}
	case MessageTypeGameOver:
		return &GameOver{}
	case MessageTypeSnapshotAck:
		return &SnapshotAck{}
	case MessageTypeEventAck:
		return &EventAck{}
	default:
		return &Unrecognized{Code: t}
	}
}
