// Package protocol provides the fixed GridClash header.
// Layout (28 bytes, big-endian):
//
//	Tag(4) Version(1) Type(1) SnapshotID(4) Sequence(4) Timestamp(8) Length(2) Checksum(4)
package protocol

import "time"

// Header precedes every payload on the wire. Tag and version are implied:
// they are written as constants and verified on decode.
type Header struct {
	MessageType MessageType // Type of the payload that follows
	SnapshotID  uint32      // Snapshot the message refers to (monotonic per server)
	Sequence    uint32      // Sender's monotonic counter
	Timestamp   uint64      // Milliseconds since epoch; authoritative only when set by the server
	Length      uint16      // Payload length in bytes
	Checksum    uint32      // CRC32 over the payload
}

// Header field offsets.
const (
	offTag        = 0
	offVersion    = 4
	offType       = 5
	offSnapshotID = 6
	offSequence   = 10
	offTimestamp  = 14
	offLength     = 22
	offChecksum   = 24
)

// SetTimestampIfZero sets the Timestamp to "now" (in ms) if it is still zero.
func (h *Header) SetTimestampIfZero() {
	if h.Timestamp == 0 {
		h.Timestamp = NowMillis()
	}
}

// Time returns the header timestamp as a time.Time.
func (h *Header) Time() time.Time {
	return time.UnixMilli(int64(h.Timestamp))
}

// NowMillis returns the current wall clock in protocol timestamp units.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
