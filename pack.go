package xpk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nxengine/xpk/internal/encoding"
)

// Codec packs and unpacks buffers with a fixed configuration. A Codec holds
// no mutable state and is safe for concurrent use.
type Codec struct {
	config Config
	logger *slog.Logger
}

// NewCodec creates a codec. Zero config fields take their defaults.
func NewCodec(cfg Config) *Codec {
	cfg.normalize()
	return &Codec{config: cfg, logger: cfg.Logger}
}

// Config returns the normalized configuration.
func (c *Codec) Config() Config {
	return c.config
}

// Pack compresses src with the given mode, using the default configuration.
// It returns ErrNotCompressible when the result would not be smaller than
// src; the caller then keeps src verbatim.
func Pack(src []byte, mode Mode) ([]byte, error) {
	return NewCodec(Config{}).Pack(src, mode)
}

// Unpack decodes one container level, using the default configuration.
func Unpack(buf []byte) ([]byte, error) {
	return NewCodec(Config{}).Unpack(buf)
}

// UnpackAll decodes buf and any containers nested inside it, using the
// default configuration.
func UnpackAll(buf []byte) ([]byte, error) {
	return NewCodec(Config{}).UnpackAll(buf)
}

// Pack compresses src with the given mode.
//
// ModeRank always rank-codes. ModeNestedRank keeps whichever of rank and
// nested rank coding is smaller. ModeBackref tokenizes first and packs the
// token stream with ModeNestedRank, storing the tokens raw if that does not
// shrink them.
func (c *Codec) Pack(src []byte, mode Mode) ([]byte, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
	if len(src) <= c.config.MinPackSize {
		return nil, ErrNotCompressible
	}
	if int64(len(src)) > c.config.MaxRawSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds max raw size", ErrNotCompressible, len(src))
	}

	var out []byte
	switch mode {
	case ModeRank:
		out = packRank(src)
	case ModeNestedRank:
		out = packRank(src)
		if nested := packNested(src); len(nested) < len(out) {
			out = nested
		}
	case ModeBackref:
		out = c.packBackref(src)
	}

	if len(out) >= len(src) {
		c.logger.Debug("pack skipped", "mode", mode, "raw", len(src), "packed", len(out))
		return nil, ErrNotCompressible
	}
	c.logger.Debug("packed", "mode", mode, "stored", Mode(out[4]), "raw", len(src), "packed", len(out))
	return out, nil
}

// packRank lays out: dict | lengths | codes.
func packRank(src []byte) []byte {
	dict := encoding.BuildDictionary(src)
	streams := encoding.RankEncode(src, &dict)

	size := HeaderSize + dict.Len() + len(streams.Lengths) + len(streams.Codes)
	buf := make([]byte, size)
	Header{
		Mode:       ModeRank,
		DictSize:   dict.Len(),
		PackedSize: uint32(size),
		RawSize:    uint32(len(src)),
	}.put(buf)

	p := HeaderSize
	p += copy(buf[p:], dict.Symbols)
	p += copy(buf[p:], streams.Lengths)
	copy(buf[p:], streams.Codes)
	return buf
}

// packNested lays out: u32 len(codes2) | dict | dict2 | lengths2 | codes2 | codes.
func packNested(src []byte) []byte {
	ns := encoding.NestedEncode(src)
	inner := ns.InnerStreams

	size := HeaderSize + 4 + ns.Dict.Len() + ns.Inner.Len() +
		len(inner.Lengths) + len(inner.Codes) + len(ns.Codes)
	buf := make([]byte, size)
	Header{
		Mode:       ModeNestedRank,
		DictSize:   ns.Dict.Len(),
		DictSize2:  ns.Inner.Len(),
		PackedSize: uint32(size),
		RawSize:    uint32(len(src)),
	}.put(buf)

	p := HeaderSize
	binary.LittleEndian.PutUint32(buf[p:], uint32(len(inner.Codes)))
	p += 4
	p += copy(buf[p:], ns.Dict.Symbols)
	p += copy(buf[p:], ns.Inner.Symbols)
	p += copy(buf[p:], inner.Lengths)
	p += copy(buf[p:], inner.Codes)
	copy(buf[p:], ns.Codes)
	return buf
}

// packBackref lays out: u32 len(tokens) | inner, where inner is either a
// nested container over the tokens or the raw tokens.
func (c *Codec) packBackref(src []byte) []byte {
	tokens := encoding.BackrefEncode(src, c.config.TableBits)

	kind := innerPacked
	inner, err := c.Pack(tokens, ModeNestedRank)
	if err != nil {
		kind = innerRaw
		inner = tokens
	}

	return backrefFrame(kind, len(tokens), inner, len(src))
}

func backrefFrame(kind uint8, tokenLen int, inner []byte, rawSize int) []byte {
	size := HeaderSize + 4 + len(inner)
	buf := make([]byte, size)
	Header{
		Mode:       ModeBackref,
		Inner:      kind,
		PackedSize: uint32(size),
		RawSize:    uint32(rawSize),
	}.put(buf)

	binary.LittleEndian.PutUint32(buf[HeaderSize:], uint32(tokenLen))
	copy(buf[HeaderSize+4:], inner)
	return buf
}

// WrapRaw stores src verbatim in a ModeBackref container made only of
// literal runs. The result is always larger than src. Unpack returns src
// from it unchanged, which gives data that already starts with the
// signature an unambiguous stored form.
func (c *Codec) WrapRaw(src []byte) ([]byte, error) {
	if int64(len(src)) > c.config.MaxRawSize {
		return nil, fmt.Errorf("wrap %d bytes: exceeds max raw size %d", len(src), c.config.MaxRawSize)
	}
	tokens := encoding.LiteralTokens(src)
	return backrefFrame(innerRaw, len(tokens), tokens, len(src)), nil
}

// Unpack decodes exactly one container level. Bytes after the declared
// packed size are ignored.
func (c *Codec) Unpack(buf []byte) ([]byte, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	if int64(h.RawSize) > c.config.MaxRawSize {
		return nil, newFormatError(FormatErrorCorrupt, "header",
			fmt.Errorf("raw size %d exceeds limit %d", h.RawSize, c.config.MaxRawSize))
	}

	payload := buf[HeaderSize:h.PackedSize]
	n := int(h.RawSize)

	switch h.Mode {
	case ModeRank:
		return unpackRank(h, payload, n)
	case ModeNestedRank:
		return unpackNested(h, payload, n)
	default:
		return c.unpackBackref(h, payload, n)
	}
}

func unpackRank(h Header, payload []byte, n int) ([]byte, error) {
	lengthSize := encoding.LengthStreamSize(n)
	if len(payload) < h.DictSize+lengthSize {
		return nil, newFormatError(FormatErrorTruncated, "rank",
			fmt.Errorf("payload %d bytes, dictionary and lengths need %d", len(payload), h.DictSize+lengthSize))
	}

	symbols := payload[:h.DictSize]
	lengths := payload[h.DictSize : h.DictSize+lengthSize]
	codes := payload[h.DictSize+lengthSize:]

	out, err := encoding.RankDecode(n, symbols, lengths, codes)
	if err != nil {
		return nil, stageError("rank", err)
	}
	return out, nil
}

func unpackNested(h Header, payload []byte, n int) ([]byte, error) {
	if len(payload) < 4 {
		return nil, newFormatError(FormatErrorTruncated, "nested", errors.New("missing inner code size"))
	}
	innerCodeSize := uint64(binary.LittleEndian.Uint32(payload))
	lengthSize := encoding.LengthStreamSize(n)
	innerLengthSize := encoding.LengthStreamSize(lengthSize)

	need := 4 + uint64(h.DictSize) + uint64(h.DictSize2) + uint64(innerLengthSize) + innerCodeSize
	if uint64(len(payload)) < need {
		return nil, newFormatError(FormatErrorTruncated, "nested",
			fmt.Errorf("payload %d bytes, sections need %d", len(payload), need))
	}

	p := 4
	symbols := payload[p : p+h.DictSize]
	p += h.DictSize
	innerSymbols := payload[p : p+h.DictSize2]
	p += h.DictSize2
	innerLengths := payload[p : p+innerLengthSize]
	p += innerLengthSize
	innerCodes := payload[p : p+int(innerCodeSize)]
	p += int(innerCodeSize)
	codes := payload[p:]

	out, err := encoding.NestedDecode(n, symbols, innerSymbols, innerLengths, innerCodes, codes)
	if err != nil {
		return nil, stageError("nested", err)
	}
	return out, nil
}

func (c *Codec) unpackBackref(h Header, payload []byte, n int) ([]byte, error) {
	if len(payload) < 4 {
		return nil, newFormatError(FormatErrorTruncated, "backref", errors.New("missing token length"))
	}
	tokenLen := uint64(binary.LittleEndian.Uint32(payload))
	inner := payload[4:]

	var tokens []byte
	switch h.Inner {
	case innerRaw:
		tokens = inner
	default:
		var err error
		tokens, err = c.Unpack(inner)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Stage = "backref/" + fe.Stage
			}
			return nil, err
		}
	}
	if uint64(len(tokens)) != tokenLen {
		kind := FormatErrorCorrupt
		if uint64(len(tokens)) < tokenLen {
			kind = FormatErrorTruncated
		}
		return nil, newFormatError(kind, "backref",
			fmt.Errorf("token stream %d bytes, header declares %d", len(tokens), tokenLen))
	}

	out, err := encoding.BackrefDecode(tokens, n)
	if err != nil {
		return nil, stageError("backref", err)
	}
	return out, nil
}

// UnpackAll decodes buf, then keeps decoding while the output is itself a
// well-formed container whose declared size matches the output exactly, up
// to MaxDepth levels.
func (c *Codec) UnpackAll(buf []byte) ([]byte, error) {
	out, err := c.Unpack(buf)
	if err != nil {
		return nil, err
	}
	for depth := 1; depth < c.config.MaxDepth && isWholeContainer(out); depth++ {
		next, err := c.Unpack(out)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Depth = depth
			}
			return nil, err
		}
		c.logger.Debug("unpacked nested container", "depth", depth, "size", len(next))
		out = next
	}
	return out, nil
}

// isWholeContainer reports whether buf parses as a container that spans
// exactly len(buf) bytes.
func isWholeContainer(buf []byte) bool {
	if !IsPacked(buf) {
		return false
	}
	h, err := ParseHeader(buf)
	return err == nil && int(h.PackedSize) == len(buf)
}
