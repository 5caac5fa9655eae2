package xpk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Packed-data container layout (little-endian):
//
//	offset 0  [4]byte signature  "xpkd"
//	offset 4  u32     attr        bits[0:8)   mode
//	                              bits[8:16)  dictSize-1 (modes 0, 1) or inner kind (mode 2)
//	                              bits[16:24) dictSize2-1 (mode 1)
//	offset 8  u32     packedSize  header + payload
//	offset 12 u32     rawSize     original length
//	offset 16 payload
const HeaderSize = 16

// Signature is the tag every packed buffer starts with.
var Signature = [4]byte{'x', 'p', 'k', 'd'}

// Mode selects the container encoding strategy.
type Mode uint8

const (
	// ModeRank rank-codes the input bytes.
	ModeRank Mode = iota
	// ModeNestedRank additionally rank-codes the length-class stream. Pack
	// falls back to ModeRank when nesting does not help.
	ModeNestedRank
	// ModeBackref tokenizes the input with the back-reference matcher and
	// packs the token stream.
	ModeBackref
)

// Modes lists every container mode.
var Modes = []Mode{ModeRank, ModeNestedRank, ModeBackref}

func (m Mode) String() string {
	switch m {
	case ModeRank:
		return "rank"
	case ModeNestedRank:
		return "nested"
	case ModeBackref:
		return "backref"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

func (m Mode) valid() bool {
	return m <= ModeBackref
}

// ParseMode accepts a mode name or its number.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rank", "0":
		return ModeRank, nil
	case "nested", "1":
		return ModeNestedRank, nil
	case "backref", "lz", "2":
		return ModeBackref, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Inner storage kinds for ModeBackref.
const (
	innerPacked uint8 = 0
	innerRaw    uint8 = 1
)

// Header is the decoded container header.
type Header struct {
	Mode       Mode
	DictSize   int   // modes 0 and 1
	DictSize2  int   // mode 1
	Inner      uint8 // mode 2
	PackedSize uint32
	RawSize    uint32
}

func (h Header) attr() uint32 {
	attr := uint32(h.Mode)
	switch h.Mode {
	case ModeRank:
		attr |= uint32(h.DictSize-1) << 8
	case ModeNestedRank:
		attr |= uint32(h.DictSize-1)<<8 | uint32(h.DictSize2-1)<<16
	case ModeBackref:
		attr |= uint32(h.Inner) << 8
	}
	return attr
}

// put writes the header into the first HeaderSize bytes of buf.
func (h Header) put(buf []byte) {
	copy(buf[0:4], Signature[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.attr())
	binary.LittleEndian.PutUint32(buf[8:12], h.PackedSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.RawSize)
}

// IsPacked reports whether buf starts with a packed-data header. It checks
// the signature and minimal length only.
func IsPacked(buf []byte) bool {
	return len(buf) >= HeaderSize && bytes.Equal(buf[:4], Signature[:])
}

// ParseHeader decodes and validates the container header of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) >= len(Signature) && !bytes.Equal(buf[:4], Signature[:]) {
		return Header{}, newFormatError(FormatErrorSignature, "header",
			fmt.Errorf("got %q", buf[:4]))
	}
	if len(buf) < HeaderSize {
		return Header{}, newFormatError(FormatErrorTruncated, "header",
			fmt.Errorf("%d bytes, need %d", len(buf), HeaderSize))
	}

	attr := binary.LittleEndian.Uint32(buf[4:8])
	h := Header{
		Mode:       Mode(attr & 0xFF),
		PackedSize: binary.LittleEndian.Uint32(buf[8:12]),
		RawSize:    binary.LittleEndian.Uint32(buf[12:16]),
	}

	if attr>>24 != 0 {
		return Header{}, newFormatError(FormatErrorCorrupt, "header",
			fmt.Errorf("reserved attr bits set: %#x", attr))
	}
	b1 := int(attr>>8) & 0xFF
	b2 := int(attr>>16) & 0xFF
	switch h.Mode {
	case ModeRank:
		if b2 != 0 {
			return Header{}, newFormatError(FormatErrorCorrupt, "header",
				fmt.Errorf("unexpected attr %#x for %s", attr, h.Mode))
		}
		h.DictSize = b1 + 1
	case ModeNestedRank:
		h.DictSize = b1 + 1
		h.DictSize2 = b2 + 1
	case ModeBackref:
		if b1 > int(innerRaw) || b2 != 0 {
			return Header{}, newFormatError(FormatErrorCorrupt, "header",
				fmt.Errorf("unexpected attr %#x for %s", attr, h.Mode))
		}
		h.Inner = uint8(b1)
	default:
		return Header{}, newFormatError(FormatErrorCorrupt, "header",
			fmt.Errorf("%w: %d", ErrInvalidMode, h.Mode))
	}

	if h.PackedSize < HeaderSize {
		return Header{}, newFormatError(FormatErrorCorrupt, "header",
			fmt.Errorf("packed size %d below header size", h.PackedSize))
	}
	if uint64(len(buf)) < uint64(h.PackedSize) {
		return Header{}, newFormatError(FormatErrorTruncated, "header",
			fmt.Errorf("%d bytes, header declares %d", len(buf), h.PackedSize))
	}
	return h, nil
}
