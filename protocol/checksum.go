// Package protocol provides CRC32 checksum utilities for GridClash payload integrity verification.
// Uses the IEEE polynomial; the checksum covers payload bytes only, never the header.
package protocol

import "hash/crc32"

// CRC32Table is the pre-computed IEEE polynomial table for efficient CRC32 calculations.
var CRC32Table = crc32.MakeTable(crc32.IEEE)

// Checksum calculates CRC32 over the payload.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, CRC32Table)
}

// VerifyChecksum reports whether want matches a recomputation over payload.
func VerifyChecksum(payload []byte, want uint32) bool {
	return Checksum(payload) == want
}
