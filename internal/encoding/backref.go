package encoding

import "fmt"

const (
	// DefaultTableBits sizes the match table at 2^18 slots.
	DefaultTableBits = 18
	minTableBits     = 8
	maxTableBits     = 24

	windowBits    = 13
	maxLiteralRun = 32
	minMatchLen   = 3
	maxMatchLen   = 0x108

	// Token head byte: bits[5:8) hold the length class, bits[0:5) the
	// literal run length-1 (class 0) or the high offset bits (class 1..7).
	literalClass  = 0
	extraLenClass = 7
	classShift    = 5
	lowMask       = 0x1F
)

// BackrefEncode tokenizes src into literal runs and back-references.
//
// A table of 2^tableBits slots maps a 3-byte context hash to the most recent
// position+1 with that context (0 means empty). A match is taken when the
// candidate's 3 bytes agree and its distance is below 2^13; it is extended
// up to 0x108 bytes. A tableBits of 0 selects DefaultTableBits.
func BackrefEncode(src []byte, tableBits int) []byte {
	switch {
	case tableBits == 0:
		tableBits = DefaultTableBits
	case tableBits < minTableBits:
		tableBits = minTableBits
	case tableBits > maxTableBits:
		tableBits = maxTableBits
	}

	n := len(src)
	table := make([]uint32, 1<<tableBits)
	out := make([]byte, 0, n+n/maxLiteralRun+1)

	litStart := 0
	i := 0
	for i+minMatchLen <= n {
		h := hash3(src[i:], tableBits)
		cand := int(table[h]) - 1
		table[h] = uint32(i + 1)

		if cand < 0 || i-cand >= 1<<windowBits ||
			src[cand] != src[i] || src[cand+1] != src[i+1] || src[cand+2] != src[i+2] {
			i++
			continue
		}

		length := minMatchLen
		for i+length < n && length < maxMatchLen && src[cand+length] == src[i+length] {
			length++
		}

		out = appendLiterals(out, src[litStart:i])
		out = appendMatch(out, i-cand-1, length)

		for j := i + 1; j < i+length && j+minMatchLen <= n; j++ {
			table[hash3(src[j:], tableBits)] = uint32(j + 1)
		}
		i += length
		litStart = i
	}

	return appendLiterals(out, src[litStart:])
}

// BackrefDecode replays a token stream into exactly rawSize bytes. Match
// copies run byte by byte so a reference may overlap the bytes it produces.
func BackrefDecode(tokens []byte, rawSize int) ([]byte, error) {
	// A 3-byte token yields at most maxMatchLen bytes; nothing expands more.
	if limit := len(tokens) * (maxMatchLen / 3); rawSize > limit {
		return nil, fmt.Errorf("%w: %d token bytes cannot produce %d bytes", ErrCorrupt, len(tokens), rawSize)
	}
	dst := make([]byte, 0, rawSize)

	for p := 0; p < len(tokens); {
		head := tokens[p]
		p++

		class := int(head >> classShift)
		if class == literalClass {
			run := int(head&lowMask) + 1
			if p+run > len(tokens) {
				return nil, fmt.Errorf("%w: literal run of %d at token byte %d", ErrTruncated, run, p-1)
			}
			if len(dst)+run > rawSize {
				return nil, fmt.Errorf("%w: literal run overflows output of %d bytes", ErrCorrupt, rawSize)
			}
			dst = append(dst, tokens[p:p+run]...)
			p += run
			continue
		}

		if p >= len(tokens) {
			return nil, fmt.Errorf("%w: match offset at token byte %d", ErrTruncated, p)
		}
		offset := int(head&lowMask)<<8 | int(tokens[p])
		p++

		length := class + 2
		if class == extraLenClass {
			if p >= len(tokens) {
				return nil, fmt.Errorf("%w: match length at token byte %d", ErrTruncated, p)
			}
			length = 9 + int(tokens[p])
			p++
		}

		if offset >= len(dst) {
			return nil, fmt.Errorf("%w: back-reference %d before start of output at %d", ErrCorrupt, offset+1, len(dst))
		}
		if len(dst)+length > rawSize {
			return nil, fmt.Errorf("%w: match overflows output of %d bytes", ErrCorrupt, rawSize)
		}

		from := len(dst) - offset - 1
		for k := 0; k < length; k++ {
			dst = append(dst, dst[from+k])
		}
	}

	if len(dst) != rawSize {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrCorrupt, len(dst), rawSize)
	}
	return dst, nil
}

// LiteralTokens encodes src as literal runs only.
func LiteralTokens(src []byte) []byte {
	out := make([]byte, 0, len(src)+(len(src)+maxLiteralRun-1)/maxLiteralRun)
	return appendLiterals(out, src)
}

func appendLiterals(out, lit []byte) []byte {
	for len(lit) > 0 {
		k := min(len(lit), maxLiteralRun)
		out = append(out, byte(k-1))
		out = append(out, lit[:k]...)
		lit = lit[k:]
	}
	return out
}

// appendMatch writes a match token; offset is distance-1.
func appendMatch(out []byte, offset, length int) []byte {
	hi := byte(offset>>8) & lowMask
	if length-2 < extraLenClass {
		return append(out, byte(length-2)<<classShift|hi, byte(offset))
	}
	return append(out, extraLenClass<<classShift|hi, byte(offset), byte(length-9))
}

func hash3(b []byte, tableBits int) uint32 {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (v * 2654435761) >> (32 - tableBits)
}
