// Package wire reads X11 request bodies and builds replies and events in
// the byte order a client announced during connection setup.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	// ErrShortRead is recorded by a Reader once a field runs past the end
	// of the request body.
	ErrShortRead = errors.New("wire: request shorter than its fields")
	// ErrBadByteOrder is returned for a setup byte other than 'B' or 'l'.
	ErrBadByteOrder = errors.New("wire: unknown byte order")
)

// OrderFromByte maps the first byte of a connection to a byte order.
func OrderFromByte(b byte) (binary.ByteOrder, error) {
	switch b {
	case 'B':
		return binary.BigEndian, nil
	case 'l':
		return binary.LittleEndian, nil
	}
	return nil, errors.Wrapf(ErrBadByteOrder, "byte %#x", b)
}

// Pad returns n rounded up to a multiple of four.
func Pad(n int) int {
	return (n + 3) &^ 3
}

// PadLen returns the number of bytes needed to align n to four.
func PadLen(n int) int {
	return Pad(n) - n
}
