package xpk

import (
	"log/slog"

	"github.com/nxengine/xpk/internal/encoding"
)

// Config defines codec configuration.
type Config struct {
	// TableBits sizes the back-reference match table at 2^TableBits slots.
	// Values are clamped to [8, 24].
	// Default: 18.
	TableBits int

	// MinPackSize is the trivial-size threshold: inputs of this many bytes
	// or fewer are never packed.
	// Default: 16.
	MinPackSize int

	// MaxDepth bounds how many nested containers UnpackAll and Load will
	// peel off one buffer.
	// Default: 4.
	MaxDepth int

	// MaxRawSize rejects headers that declare a larger original size, so a
	// corrupt header cannot force a huge allocation.
	// Default: 1GB.
	MaxRawSize int64

	// Logger receives debug output about mode decisions.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableBits:   encoding.DefaultTableBits,
		MinPackSize: 16,
		MaxDepth:    4,
		MaxRawSize:  1 << 30,
	}
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.TableBits == 0 {
		c.TableBits = def.TableBits
	}
	if c.MinPackSize <= 0 {
		c.MinPackSize = def.MinPackSize
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxRawSize <= 0 {
		c.MaxRawSize = def.MaxRawSize
	}
	if c.MaxRawSize > int64(^uint32(0)) {
		c.MaxRawSize = int64(^uint32(0))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NormalizedCopy returns a copy of the configuration with defaults applied.
func (c Config) NormalizedCopy() Config {
	c.normalize()
	return c
}
