package xpk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/golang/snappy"
)

// ModeBenchmark holds the result of packing a buffer with one mode.
type ModeBenchmark struct {
	Mode           Mode          `json:"mode"`
	Stored         Mode          `json:"stored"` // mode recorded in the header
	Compressible   bool          `json:"compressible"`
	PackedSize     int           `json:"packed_size"`
	Ratio          float64       `json:"ratio"`
	PackTime       time.Duration `json:"pack_time"`
	UnpackTime     time.Duration `json:"unpack_time"`
	RoundTripValid bool          `json:"round_trip_valid"`
}

// Advice summarizes how well a buffer packs.
type Advice struct {
	RawSize     int             `json:"raw_size"`
	Distinct    int             `json:"distinct"`
	Entropy     float64         `json:"entropy"` // bits per byte
	Benchmarks  []ModeBenchmark `json:"benchmarks"`
	SnappySize  int             `json:"snappy_size"`
	Best        Mode            `json:"best"`
	BestSize    int             `json:"best_size"`
	Recommended bool            `json:"recommended"`
	Reasoning   string          `json:"reasoning"`
}

// Advise packs src with every mode, verifies each result round-trips, and
// compares the best against Snappy as a general-purpose baseline.
func (c *Codec) Advise(src []byte) (*Advice, error) {
	distinct, entropy := byteEntropy(src)
	advice := &Advice{
		RawSize:    len(src),
		Distinct:   distinct,
		Entropy:    entropy,
		SnappySize: len(snappy.Encode(nil, src)),
		BestSize:   len(src),
	}

	for _, mode := range Modes {
		bench, err := c.benchmarkMode(src, mode)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", mode, err)
		}
		advice.Benchmarks = append(advice.Benchmarks, *bench)
	}

	sort.SliceStable(advice.Benchmarks, func(i, j int) bool {
		a, b := advice.Benchmarks[i], advice.Benchmarks[j]
		if a.Compressible != b.Compressible {
			return a.Compressible
		}
		return a.PackedSize < b.PackedSize
	})

	top := advice.Benchmarks[0]
	if !top.Compressible {
		advice.Reasoning = fmt.Sprintf("no mode shrinks %d bytes (entropy %.2f bits/byte); store raw", len(src), entropy)
		return advice, nil
	}

	advice.Best = top.Mode
	advice.BestSize = top.PackedSize
	advice.Recommended = true
	advice.Reasoning = fmt.Sprintf("%s packs %d -> %d bytes (%.2fx)", top.Mode, len(src), top.PackedSize, top.Ratio)
	if advice.SnappySize < top.PackedSize {
		advice.Reasoning += fmt.Sprintf("; snappy baseline is smaller at %d bytes", advice.SnappySize)
	}
	return advice, nil
}

func (c *Codec) benchmarkMode(src []byte, mode Mode) (*ModeBenchmark, error) {
	bench := &ModeBenchmark{Mode: mode, PackedSize: len(src), Ratio: 1}

	start := time.Now()
	packed, err := c.Pack(src, mode)
	bench.PackTime = time.Since(start)
	if isNotCompressible(err) {
		return bench, nil
	}
	if err != nil {
		return nil, err
	}

	start = time.Now()
	restored, err := c.Unpack(packed)
	bench.UnpackTime = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	bench.Compressible = true
	bench.Stored = Mode(packed[4])
	bench.PackedSize = len(packed)
	bench.Ratio = float64(len(src)) / float64(len(packed))
	bench.RoundTripValid = string(restored) == string(src)
	if !bench.RoundTripValid {
		return nil, fmt.Errorf("%w: %s round trip mismatch", ErrCorruptStream, mode)
	}
	return bench, nil
}

// PackBest packs src with whichever mode yields the smallest container.
func (c *Codec) PackBest(src []byte) ([]byte, Mode, error) {
	var best []byte
	var bestMode Mode
	for _, mode := range Modes {
		out, err := c.Pack(src, mode)
		if isNotCompressible(err) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if best == nil || len(out) < len(best) {
			best, bestMode = out, mode
		}
	}
	if best == nil {
		return nil, 0, ErrNotCompressible
	}
	return best, bestMode, nil
}

// byteEntropy returns the number of distinct byte values and the Shannon
// entropy in bits per byte.
func byteEntropy(src []byte) (int, float64) {
	if len(src) == 0 {
		return 0, 0
	}
	var counts [256]int
	for _, b := range src {
		counts[b]++
	}

	n := float64(len(src))
	distinct := 0
	entropy := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		distinct++
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return distinct, entropy
}

func isNotCompressible(err error) bool {
	return errors.Is(err, ErrNotCompressible)
}
