package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderDecode parses the first HeaderSize bytes of data. It checks the
// protocol tag and version but not the payload; see Decode for the full frame.
func HeaderDecode(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformedHeader, len(data), HeaderSize)
	}
	if !bytes.Equal(data[offTag:offTag+len(ProtocolTag)], ProtocolTag[:]) {
		return nil, fmt.Errorf("%w: bad protocol tag %q", ErrMalformedHeader, data[offTag:offTag+len(ProtocolTag)])
	}
	if v := data[offVersion]; v != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHeader, v)
	}

	h := &Header{
		MessageType: MessageType(data[offType]),
		SnapshotID:  binary.BigEndian.Uint32(data[offSnapshotID:]),
		Sequence:    binary.BigEndian.Uint32(data[offSequence:]),
		Timestamp:   binary.BigEndian.Uint64(data[offTimestamp:]),
		Length:      binary.BigEndian.Uint16(data[offLength:]),
		Checksum:    binary.BigEndian.Uint32(data[offChecksum:]),
	}
	return h, nil
}
