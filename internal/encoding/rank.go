package encoding

import (
	"fmt"
	stdbits "math/bits"

	"github.com/nxengine/xpk/internal/bits"
)

// LengthClassBits is the width of one entry in the length-class stream.
// Three bits cover code lengths 1..8, enough for a 256-entry dictionary.
const LengthClassBits = 3

// RankStreams holds the two bit streams produced by rank coding.
type RankStreams struct {
	// Lengths holds one 3-bit length class (code length - 1) per symbol.
	Lengths []byte

	// Codes holds the truncated-binary payloads back to back.
	Codes []byte

	// CodeBits is the number of meaningful bits in Codes.
	CodeBits int
}

// LengthStreamSize returns the byte size of the length-class stream for n
// symbols.
func LengthStreamSize(n int) int {
	return bits.ByteLen(n * LengthClassBits)
}

// RankEncode codes every byte of src by its rank in dict.
//
// A rank r has code length nbits = max(1, bitlen(r)). Length-1 codes carry
// the rank itself as a single bit (ranks 0 and 1); longer codes drop the
// implicit leading one and store the nbits-1 bits below it.
func RankEncode(src []byte, dict *Dictionary) RankStreams {
	lw := bits.NewWriterSize(len(src) * LengthClassBits)
	cw := bits.NewWriterSize(len(src) * 2)

	for _, b := range src {
		r := uint32(dict.Rank[b])
		nbits := stdbits.Len32(r)
		if nbits <= 1 {
			lw.WriteBits(0, LengthClassBits)
			cw.WriteBits(r, 1)
			continue
		}
		lw.WriteBits(uint32(nbits-1), LengthClassBits)
		cw.WriteBits(r-1<<(nbits-1), nbits-1)
	}

	return RankStreams{
		Lengths:  lw.Bytes(),
		Codes:    cw.Bytes(),
		CodeBits: cw.Len(),
	}
}

// RankDecode reverses RankEncode for n symbols.
func RankDecode(n int, symbols, lengths, codes []byte) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty dictionary for %d symbols", ErrCorrupt, n)
	}
	if len(lengths) < LengthStreamSize(n) {
		return nil, fmt.Errorf("%w: length stream has %d bytes, need %d", ErrTruncated, len(lengths), LengthStreamSize(n))
	}

	lr := bits.NewReader(lengths)
	cr := bits.NewReader(codes)
	out := make([]byte, n)

	for i := 0; i < n; i++ {
		class, err := lr.ReadBits(LengthClassBits)
		if err != nil {
			return nil, fmt.Errorf("%w: length class %d", ErrTruncated, i)
		}

		var rank uint32
		if class == 0 {
			rank, err = cr.ReadBits(1)
		} else {
			var payload uint32
			payload, err = cr.ReadBits(int(class))
			rank = 1<<class | payload
		}
		if err != nil {
			return nil, fmt.Errorf("%w: code %d at bit %d", ErrTruncated, i, cr.Pos())
		}

		if int(rank) >= len(symbols) {
			return nil, fmt.Errorf("%w: rank %d outside dictionary of %d at symbol %d", ErrCorrupt, rank, len(symbols), i)
		}
		out[i] = symbols[rank]
	}
	return out, nil
}
