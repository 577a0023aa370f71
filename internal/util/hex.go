// Package util provides the small byte/hex conversions the roc CLI needs
// to print register values.
package util

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// BytesToHex converts a byte slice to a hex string with spaces between bytes.
func BytesToHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}

// U32ToLEBytes converts a uint32 to a 4-byte little-endian slice.
func U32ToLEBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
