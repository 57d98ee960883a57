package protocol

import (
	"errors"
	"fmt"
)

// Message is a decoded datagram: the header plus its typed body.
type Message struct {
	Header Header
	Body   Body
}

// NewMessage wraps body in a message whose header type matches it.
func NewMessage(body Body) *Message {
	return &Message{
		Header: Header{MessageType: body.Type()},
		Body:   body,
	}
}

// Type returns the message type recorded in the header.
func (m *Message) Type() MessageType {
	return m.Header.MessageType
}

// Encode serializes m into a single datagram. The header's type, length and
// checksum are derived from the body and written back into m.Header; every
// other header field is sent as is.
func Encode(m *Message) ([]byte, error) {
	if m == nil || m.Body == nil {
		return nil, errors.New("gridclash: message has no body")
	}

	payload, err := m.Body.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("gridclash: marshal %s: %w", m.Body.Type(), err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	m.Header.MessageType = m.Body.Type()
	m.Header.Length = uint16(len(payload))
	m.Header.Checksum = Checksum(payload)

	buf, err := HeaderEncode(&m.Header)
	if err != nil {
		return nil, err
	}
	return append(buf, payload...), nil
}

// Decode parses a datagram. It fails with ErrMalformedHeader, ErrTruncatedPayload,
// ErrChecksumMismatch or ErrMalformedPayload; unknown message types are not an
// error and come back with an *Unrecognized body.
func Decode(data []byte) (*Message, error) {
	h, err := HeaderDecode(data)
	if err != nil {
		return nil, err
	}

	available := len(data) - HeaderSize
	if available < int(h.Length) {
		return nil, fmt.Errorf("%w: header declares %d bytes, %d present", ErrTruncatedPayload, h.Length, available)
	}
	if available > int(h.Length) {
		return nil, fmt.Errorf("%w: %d trailing bytes after declared payload", ErrMalformedPayload, available-int(h.Length))
	}

	payload := data[HeaderSize : HeaderSize+int(h.Length)]
	if !VerifyChecksum(payload, h.Checksum) {
		return nil, fmt.Errorf("%w: header %08x, computed %08x", ErrChecksumMismatch, h.Checksum, Checksum(payload))
	}

	body := newBody(h.MessageType)
	if err := body.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	return &Message{Header: *h, Body: body}, nil
}
