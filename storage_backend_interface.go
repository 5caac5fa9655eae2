package xpk

import (
	"context"
)

// StorageBackend defines the interface for asset blob storage.
// This allows packed assets to live on the local filesystem, in memory,
// in S3 or in a SQLite catalog.
//
// Read returns an error matching ErrAssetNotFound for missing keys.
type StorageBackend interface {
	// Read reads an asset blob from storage.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write writes an asset blob to storage.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes an asset blob from storage.
	Delete(ctx context.Context, key string) error

	// List returns all asset keys matching a prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an asset exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented
var (
	_ StorageBackend = (*FileBackend)(nil)
	_ StorageBackend = (*S3Backend)(nil)
	_ StorageBackend = (*MemoryBackend)(nil)
	_ StorageBackend = (*TieredBackend)(nil)
	_ StorageBackend = (*SQLiteBackend)(nil)
)
