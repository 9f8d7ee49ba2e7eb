package wire

import (
	"encoding/binary"
)

// Writer accumulates one or more outgoing packets.
type Writer struct {
	order binary.ByteOrder
	buf   []byte
	start int
}

// NewWriter returns an empty Writer.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order, buf: make([]byte, 0, 32)}
}

// Order is the byte order the Writer encodes with.
func (w *Writer) Order() binary.ByteOrder { return w.order }

// Data returns everything written so far.
func (w *Writer) Data() []byte { return w.buf }

// Len is the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards all written data.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.start = 0
}

func (w *Writer) Byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int16(v int16) {
	w.Uint16(uint16(v))
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Pad writes n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// String8 writes s followed by padding to a four byte boundary.
func (w *Writer) String8(s string) {
	w.buf = append(w.buf, s...)
	w.Pad(PadLen(len(s)))
}

// PutUint16At overwrites two bytes at off.
func (w *Writer) PutUint16At(off int, v uint16) {
	w.order.PutUint16(w.buf[off:], v)
}

// PutUint32At overwrites four bytes at off.
func (w *Writer) PutUint32At(off int, v uint32) {
	w.order.PutUint32(w.buf[off:], v)
}

// BeginReply starts a reply packet: response code 1, the request
// specific data byte, the sequence number and a length placeholder.
func (w *Writer) BeginReply(data byte, seq uint16) {
	w.start = len(w.buf)
	w.Byte(1)
	w.Byte(data)
	w.Uint16(seq)
	w.Uint32(0)
}

// EndReply pads the packet begun by BeginReply to at least 32 bytes and
// to a four byte boundary, then fills in its length field in 4-byte
// units beyond the first 32 bytes.
func (w *Writer) EndReply() {
	n := len(w.buf) - w.start
	if n < 32 {
		w.Pad(32 - n)
		n = 32
	}
	w.Pad(PadLen(n))
	n = Pad(n)
	w.PutUint32At(w.start+4, uint32((n-32)/4))
}
