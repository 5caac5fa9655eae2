package encoding

import (
	"slices"
	"sort"
)

// Dictionary maps the byte values present in a buffer to dense ranks
// ordered by occurrence count. Rank 0 is the most frequent value.
type Dictionary struct {
	// Symbols maps rank to byte value.
	Symbols []byte

	// Rank maps byte value to rank. Entries for absent values are zero.
	Rank [256]uint8
}

// BuildDictionary counts every byte value in src and ranks the values that
// occur. Values are inserted in ascending byte order with a binary search, so
// among equal counts the lower byte value keeps the lower rank.
// An empty src yields an empty dictionary.
func BuildDictionary(src []byte) Dictionary {
	var counts [256]int
	for _, b := range src {
		counts[b]++
	}

	order := make([]byte, 0, 256)
	for v := 0; v < 256; v++ {
		c := counts[v]
		if c == 0 {
			continue
		}
		pos := sort.Search(len(order), func(i int) bool {
			return counts[order[i]] < c
		})
		order = slices.Insert(order, pos, byte(v))
	}

	d := Dictionary{Symbols: order}
	for rank, v := range order {
		d.Rank[v] = uint8(rank)
	}
	return d
}

// Len returns the number of distinct symbols.
func (d *Dictionary) Len() int {
	return len(d.Symbols)
}
