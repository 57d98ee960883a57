package protocol

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// PacketConn frames GridClash messages over a datagram socket. One datagram
// carries exactly one message. It is safe for one reader and any number of
// concurrent writers, matching net.PacketConn.
type PacketConn struct {
	pc             net.PacketConn
	maxMessageSize int
	buf            []byte
}

// NewPacketConn wraps pc. maxSize bounds both reads and writes.
func NewPacketConn(pc net.PacketConn, maxSize int) *PacketConn {
	return &PacketConn{
		pc:             pc,
		maxMessageSize: maxSize,
		buf:            make([]byte, maxSize),
	}
}

// ReadMessage reads one datagram and decodes it. The sender address is
// returned even when decoding fails so callers can attribute the drop;
// decode failures satisfy IsDecodeError, transport failures do not.
func (c *PacketConn) ReadMessage() (*Message, net.Addr, error) {
	n, addr, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		return nil, nil, fmt.Errorf("UDP: read error: %w", err)
	}

	msg, err := Decode(c.buf[:n])
	if err != nil {
		return nil, addr, err
	}
	return msg, addr, nil
}

// WriteMessage encodes m and sends it to addr.
func (c *PacketConn) WriteMessage(m *Message, addr net.Addr) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return c.WriteDatagram(data, addr)
}

// WriteDatagram sends already-encoded bytes, used for broadcasts and resends.
func (c *PacketConn) WriteDatagram(data []byte, addr net.Addr) error {
	if len(data) > c.maxMessageSize {
		return fmt.Errorf("UDP: message size %d exceeds maximum %d", len(data), c.maxMessageSize)
	}
	if _, err := c.pc.WriteTo(data, addr); err != nil {
		return fmt.Errorf("UDP: write error: %w", err)
	}
	return nil
}

// SetReadDeadline bounds the next ReadMessage.
func (c *PacketConn) SetReadDeadline(t time.Time) error {
	return c.pc.SetReadDeadline(t)
}

// SetWriteDeadline bounds subsequent writes.
func (c *PacketConn) SetWriteDeadline(t time.Time) error {
	return c.pc.SetWriteDeadline(t)
}

// LocalAddr returns the bound address.
func (c *PacketConn) LocalAddr() net.Addr {
	return c.pc.LocalAddr()
}

// Close closes the underlying socket.
func (c *PacketConn) Close() error {
	return c.pc.Close()
}

// IsTimeout reports whether err is a read/write deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err comes from using a closed socket.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
