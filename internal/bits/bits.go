// Package bits provides bit-level I/O utilities for compression codecs.
//
// Fields are packed LSB-first: the first bit written lands in bit 0 of the
// first byte, and a multi-bit value is stored low bit first.
package bits

import (
	"errors"
)

// ErrOutOfBits is returned when a read runs past the end of the buffer.
var ErrOutOfBits = errors.New("out of bits")

// Writer appends bit fields to a byte buffer.
type Writer struct {
	buf   []byte
	nbits int
}

// NewWriter creates a new bit writer.
func NewWriter() *Writer {
	return &Writer{}
}

// NewWriterSize creates a bit writer with room for sizeHint bits.
func NewWriterSize(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, (sizeHint+7)/8)}
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(bit uint8) {
	w.WriteBits(uint32(bit&1), 1)
}

// WriteBits writes the low n bits of value, n in [0, 32].
func (w *Writer) WriteBits(value uint32, n int) {
	for n > 0 {
		off := w.nbits & 7
		if off == 0 {
			w.buf = append(w.buf, 0)
		}
		take := 8 - off
		if take > n {
			take = n
		}
		mask := uint32(1)<<take - 1
		w.buf[len(w.buf)-1] |= byte((value & mask) << off)
		value >>= take
		n -= take
		w.nbits += take
	}
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.nbits
}

// Bytes returns the accumulated bytes. A partial final byte is zero-padded.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader reads bit fields from a byte buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a new bit reader.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint8, error) {
	v, err := r.ReadBits(1)
	return uint8(v), err
}

// ReadBits reads an n-bit field, n in [0, 32].
func (r *Reader) ReadBits(n int) (uint32, error) {
	if n > r.Remaining() {
		return 0, ErrOutOfBits
	}
	v := Get(r.buf, r.pos, n)
	r.pos += n
	return v, nil
}

// Pos returns the bit cursor.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return len(r.buf)*8 - r.pos
}

// Get returns the n-bit field starting at bit offset off. The caller
// guarantees off+n <= len(buf)*8.
func Get(buf []byte, off, n int) uint32 {
	var v uint32
	shift := 0
	for n > 0 {
		b := buf[off>>3]
		bo := off & 7
		take := 8 - bo
		if take > n {
			take = n
		}
		v |= uint32((b>>bo)&(1<<take-1)) << shift
		shift += take
		off += take
		n -= take
	}
	return v
}

// Put stores the low n bits of value at bit offset off, leaving the
// surrounding bits untouched.
func Put(buf []byte, off, n int, value uint32) {
	for n > 0 {
		bo := off & 7
		take := 8 - bo
		if take > n {
			take = n
		}
		mask := byte(1<<take-1) << bo
		buf[off>>3] = buf[off>>3]&^mask | byte(value<<bo)&mask
		value >>= take
		off += take
		n -= take
	}
}

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	return (n + 7) / 8
}
