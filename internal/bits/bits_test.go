package bits

import (
	"errors"
	"testing"
)

func TestBitWriterReader(t *testing.T) {
	tests := []struct {
		name   string
		values []uint32
		bits   []int
	}{
		{
			name:   "single bit",
			values: []uint32{1},
			bits:   []int{1},
		},
		{
			name:   "multiple bits",
			values: []uint32{0b11010110},
			bits:   []int{8},
		},
		{
			name:   "32 bits",
			values: []uint32{0xDEADBEEF},
			bits:   []int{32},
		},
		{
			name:   "multiple values",
			values: []uint32{0b101, 0b11, 0b1111},
			bits:   []int{3, 2, 4},
		},
		{
			name:   "length classes",
			values: []uint32{7, 0, 3, 5, 1, 6, 2, 4, 7},
			bits:   []int{3, 3, 3, 3, 3, 3, 3, 3, 3},
		},
		{
			name:   "zero width",
			values: []uint32{0, 9},
			bits:   []int{0, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter()
			total := 0
			for i, v := range tt.values {
				w.WriteBits(v, tt.bits[i])
				total += tt.bits[i]
			}
			if w.Len() != total {
				t.Fatalf("Len: got %d, want %d", w.Len(), total)
			}
			data := w.Bytes()
			if len(data) != ByteLen(total) {
				t.Fatalf("byte length: got %d, want %d", len(data), ByteLen(total))
			}

			r := NewReader(data)
			for i, expected := range tt.values {
				got, err := r.ReadBits(tt.bits[i])
				if err != nil {
					t.Fatalf("ReadBits failed: %v", err)
				}
				if got != expected {
					t.Errorf("value %d: got %d, want %d", i, got, expected)
				}
			}
		})
	}
}

func TestBitWriterSingleBits(t *testing.T) {
	w := NewWriter()
	for _, b := range []uint8{1, 0, 1, 1, 0, 0, 1, 0} {
		w.WriteBit(b)
	}

	data := w.Bytes()
	if len(data) != 1 {
		t.Fatalf("expected 1 byte, got %d", len(data))
	}
	// LSB-first: the first bit written is bit 0.
	if data[0] != 0b01001101 {
		t.Errorf("expected 0b01001101, got 0b%08b", data[0])
	}
}

func TestBitReaderEmpty(t *testing.T) {
	r := NewReader([]byte{})
	_, err := r.ReadBit()
	if !errors.Is(err, ErrOutOfBits) {
		t.Errorf("expected ErrOutOfBits, got %v", err)
	}
}

func TestBitReaderPastEnd(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(5); err != nil {
		t.Fatalf("ReadBits failed: %v", err)
	}
	if r.Remaining() != 3 {
		t.Fatalf("Remaining: got %d, want 3", r.Remaining())
	}
	if _, err := r.ReadBits(4); err == nil {
		t.Error("expected error reading past the end")
	}
	if r.Pos() != 5 {
		t.Errorf("failed read moved cursor to %d", r.Pos())
	}
}

func TestGetPutAtOffset(t *testing.T) {
	buf := make([]byte, 4)
	Put(buf, 5, 11, 0x5A5)
	Put(buf, 16, 3, 0b110)
	Put(buf, 0, 5, 0b10011)

	if got := Get(buf, 5, 11); got != 0x5A5 {
		t.Errorf("field at 5: got %#x, want 0x5a5", got)
	}
	if got := Get(buf, 16, 3); got != 0b110 {
		t.Errorf("field at 16: got %b, want 110", got)
	}
	if got := Get(buf, 0, 5); got != 0b10011 {
		t.Errorf("field at 0: got %b, want 10011", got)
	}

	// Overwrite in place without disturbing neighbours.
	Put(buf, 5, 11, 0)
	if got := Get(buf, 0, 5); got != 0b10011 {
		t.Errorf("neighbour clobbered: got %b", got)
	}
	if got := Get(buf, 16, 3); got != 0b110 {
		t.Errorf("neighbour clobbered: got %b", got)
	}
}

func TestWriterMatchesPut(t *testing.T) {
	w := NewWriter()
	buf := make([]byte, 16)
	off := 0
	for i := 0; i < 20; i++ {
		n := i%7 + 1
		v := uint32(i*37) & (1<<n - 1)
		w.WriteBits(v, n)
		Put(buf, off, n, v)
		off += n
	}
	got := w.Bytes()
	for i := range got {
		if got[i] != buf[i] {
			t.Fatalf("byte %d: writer %#x, put %#x", i, got[i], buf[i])
		}
	}
}
