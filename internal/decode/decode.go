// Package decode converts raw BLE characteristic payloads into physical
// quantities. All functions are pure: a malformed buffer yields a DecodeError
// and leaves nothing behind for the next call to trip over.
package decode

import "fmt"

// DecodeError reports a characteristic payload that is too short (or otherwise
// structurally invalid) for the expected layout. Callers are expected to log
// and drop the notification rather than tear down the connection.
type DecodeError struct {
	Characteristic string
	Need           int
	Got            int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: payload too short: need %d bytes, got %d", e.Characteristic, e.Need, e.Got)
}

func shortBuffer(characteristic string, need, got int) *DecodeError {
	return &DecodeError{Characteristic: characteristic, Need: need, Got: got}
}

// uint24LE assembles a 3-byte little-endian unsigned integer.
// encoding/binary has no 24-bit variant.
func uint24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
