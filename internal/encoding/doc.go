// Package encoding implements the entropy and back-reference stages of the
// packed-data codec.
//
// The stages are:
//   - Dictionary: frequency-ranked remapping of the byte values in a buffer
//   - Rank: per-symbol variable-length codes split into a fixed-stride
//     length-class stream and a variable-stride payload stream
//   - Nested: rank coding applied again to the length-class stream
//   - Backref: single-pass LZ-style literal/match tokenizer
//
// Every stage is a pure function over caller-owned buffers. Container
// framing lives in the parent package.
package encoding
