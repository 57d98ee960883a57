package protocol

import "errors"

// Decode failures. All of them mean "drop the datagram"; none is fatal to a
// receive loop.
var (
	ErrMalformedHeader  = errors.New("gridclash: malformed header")
	ErrChecksumMismatch = errors.New("gridclash: checksum mismatch")
	ErrTruncatedPayload = errors.New("gridclash: truncated payload")
	ErrMalformedPayload = errors.New("gridclash: malformed payload")
)

// ErrPayloadTooLarge is returned by Encode when a body does not fit the length field.
var ErrPayloadTooLarge = errors.New("gridclash: payload exceeds maximum size")

// IsDecodeError reports whether err is one of the recoverable decode failures.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrTruncatedPayload) ||
		errors.Is(err, ErrMalformedPayload)
}
