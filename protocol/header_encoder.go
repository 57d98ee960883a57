package protocol

import (
	"encoding/binary"
	"errors"
)

// HeaderEncode serializes the header into a fresh HeaderSize byte slice.
func HeaderEncode(h *Header) ([]byte, error) {
	if h == nil {
		return nil, errors.New("gridclash: header is nil")
	}
	buf := make([]byte, HeaderSize)
	putHeader(buf, h)
	return buf, nil
}

// putHeader writes h into buf, which must hold at least HeaderSize bytes.
func putHeader(buf []byte, h *Header) {
	copy(buf[offTag:], ProtocolTag[:])
	buf[offVersion] = CurrentVersion
	buf[offType] = byte(h.MessageType)
	binary.BigEndian.PutUint32(buf[offSnapshotID:], h.SnapshotID)
	binary.BigEndian.PutUint32(buf[offSequence:], h.Sequence)
	binary.BigEndian.PutUint64(buf[offTimestamp:], h.Timestamp)
	binary.BigEndian.PutUint16(buf[offLength:], h.Length)
	binary.BigEndian.PutUint32(buf[offChecksum:], h.Checksum)
}
