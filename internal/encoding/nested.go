package encoding

// NestedStreams is the output of the nested rank coder. The outer length
// stream is never kept; only its own rank coding is.
type NestedStreams struct {
	Dict  Dictionary
	Codes []byte

	Inner        Dictionary
	InnerStreams RankStreams
}

// NestedEncode rank-codes src, then rank-codes the resulting length-class
// stream, which is usually dominated by a few classes.
func NestedEncode(src []byte) NestedStreams {
	dict := BuildDictionary(src)
	outer := RankEncode(src, &dict)

	inner := BuildDictionary(outer.Lengths)
	return NestedStreams{
		Dict:         dict,
		Codes:        outer.Codes,
		Inner:        inner,
		InnerStreams: RankEncode(outer.Lengths, &inner),
	}
}

// NestedDecode restores n symbols. The outer length stream is rebuilt first
// from the inner streams, then used to decode codes.
func NestedDecode(n int, symbols, innerSymbols, innerLengths, innerCodes, codes []byte) ([]byte, error) {
	lengths, err := RankDecode(LengthStreamSize(n), innerSymbols, innerLengths, innerCodes)
	if err != nil {
		return nil, err
	}
	return RankDecode(n, symbols, lengths, codes)
}
