package wire

import (
	"encoding/binary"
)

// Reader decodes the body of a single request. Reads past the end of
// the body return zero values and make Err report ErrShortRead.
type Reader struct {
	order binary.ByteOrder
	buf   []byte
	pos   int
	err   error
}

// NewReader returns a Reader over buf.
func NewReader(order binary.ByteOrder, buf []byte) *Reader {
	return &Reader{order: order, buf: buf}
}

// Order is the byte order the Reader decodes with.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// Err returns ErrShortRead if any read ran out of data.
func (r *Reader) Err() error { return r.err }

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Consumed is the number of bytes read or skipped so far.
func (r *Reader) Consumed() int { return r.pos }

func (r *Reader) take(n int) []byte {
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = ErrShortRead
		r.pos = len(r.buf)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

func (r *Reader) Int16() int16 {
	return int16(r.Uint16())
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

// Bytes returns the next n bytes without copying them.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// String8 reads an n byte string followed by its padding.
func (r *Reader) String8(n int) string {
	b := r.take(n)
	r.Skip(PadLen(n))
	return string(b)
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// SkipRest discards everything left in the body.
func (r *Reader) SkipRest() {
	r.pos = len(r.buf)
}

// PeekUint32 decodes the 32-bit value off bytes past the read position
// without consuming anything. ok is false when the body is too short.
func (r *Reader) PeekUint32(off int) (v uint32, ok bool) {
	at := r.pos + off
	if off < 0 || at+4 > len(r.buf) {
		return 0, false
	}
	return r.order.Uint32(r.buf[at:]), true
}
