package xpk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AssetInfo describes a stored asset blob.
type AssetInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"` // stored bytes
	Packed    bool      `json:"packed"`
	Sealed    bool      `json:"sealed"`
	Mode      Mode      `json:"mode"`
	RawSize   int64     `json:"raw_size"` // 0 when sealed and no key is available
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// DescribeBlob inspects a stored blob without decoding its payload.
func DescribeBlob(blob []byte) AssetInfo {
	info := AssetInfo{Size: int64(len(blob))}
	switch {
	case IsSealed(blob):
		info.Sealed = true
	case IsPacked(blob):
		if h, err := ParseHeader(blob); err == nil {
			info.Packed = true
			info.Mode = h.Mode
			info.RawSize = int64(h.RawSize)
			return info
		}
		info.RawSize = info.Size
	default:
		info.RawSize = info.Size
	}
	return info
}

// StoreStats holds AssetStore counters.
type StoreStats struct {
	Puts        int64 `json:"puts"`
	Gets        int64 `json:"gets"`
	CacheHits   int64 `json:"cache_hits"`
	RawBytes    int64 `json:"raw_bytes"`    // bytes handed to Put
	StoredBytes int64 `json:"stored_bytes"` // bytes written to the backend
	StoredRaw   int64 `json:"stored_raw"`   // Puts that did not pack
}

// AssetStore keeps named assets in a StorageBackend. Put packs each asset
// (storing it verbatim when packing does not help) and optionally seals it;
// Get reverses both and caches the decoded bytes.
type AssetStore struct {
	backend StorageBackend
	codec   *Codec
	mode    Mode
	auto    bool
	sealer  *Encryptor
	cache   *lru.Cache[string, []byte]
	logger  *slog.Logger

	puts        atomic.Int64
	gets        atomic.Int64
	cacheHits   atomic.Int64
	rawBytes    atomic.Int64
	storedBytes atomic.Int64
	storedRaw   atomic.Int64
}

// NewAssetStore creates an asset store over backend. Only the codec,
// mode, cache and encryption settings of cfg are used here; see OpenBackend
// for the backend settings.
func NewAssetStore(backend StorageBackend, cfg StoreConfig) (*AssetStore, error) {
	if backend == nil {
		return nil, errors.New("asset store requires a backend")
	}
	cfg.normalize()
	if !cfg.Mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, cfg.Mode)
	}

	sealer, err := NewEncryptor(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	codec := NewCodec(cfg.codecConfig())
	s := &AssetStore{
		backend: backend,
		codec:   codec,
		mode:    cfg.Mode,
		auto:    cfg.Auto,
		sealer:  sealer,
		logger:  codec.logger,
	}

	s.cache, err = lru.NewWithEvict(cfg.CacheSize, func(key string, _ []byte) {
		s.logger.Debug("asset evicted from cache", "key", key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}
	return s, nil
}

// Codec returns the codec the store packs with.
func (s *AssetStore) Codec() *Codec {
	return s.codec
}

// Backend returns the underlying storage backend.
func (s *AssetStore) Backend() StorageBackend {
	return s.backend
}

// encode packs data and seals the result if sealing is enabled.
func (s *AssetStore) encode(data []byte) ([]byte, AssetInfo, error) {
	var blob []byte
	var packed bool
	mode := s.mode

	if s.auto {
		out, best, err := s.codec.PackBest(data)
		switch {
		case err == nil:
			blob, packed, mode = out, true, best
		case isNotCompressible(err):
			blob, packed, err = s.codec.storeRaw(data)
			if err != nil {
				return nil, AssetInfo{}, err
			}
		default:
			return nil, AssetInfo{}, err
		}
	} else {
		var err error
		blob, packed, err = s.codec.PackOrStore(data, mode)
		if err != nil {
			return nil, AssetInfo{}, err
		}
	}

	// Raw data carrying the sealed tag would be opened on read.
	if !packed && IsSealed(blob) {
		wrapped, err := s.codec.WrapRaw(blob)
		if err != nil {
			return nil, AssetInfo{}, err
		}
		blob, packed = wrapped, true
	}

	info := DescribeBlob(blob)
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(blob)
		if err != nil {
			return nil, AssetInfo{}, fmt.Errorf("failed to seal asset: %w", err)
		}
		blob = sealed
		info.Sealed = true
		info.Size = int64(len(sealed))
	}
	if !packed {
		s.logger.Debug("storing asset raw", "mode", mode, "size", len(data))
	}
	return blob, info, nil
}

// decode opens a sealed blob and unpacks the single container level
// encode wrote.
func (s *AssetStore) decode(key string, blob []byte) ([]byte, error) {
	if IsSealed(blob) {
		if s.sealer == nil {
			return nil, fmt.Errorf("%w: %s: no key configured", ErrSealedAsset, key)
		}
		opened, err := s.sealer.Open(blob)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		blob = opened
	}

	data, err := s.codec.Restore(blob)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			s.logger.Warn("corrupt asset", "key", key, "stage", fe.Stage, "error", fe.Cause)
		}
		return nil, fmt.Errorf("load asset %s: %w", key, err)
	}
	return data, nil
}

// Put stores data under key.
func (s *AssetStore) Put(ctx context.Context, key string, data []byte) (AssetInfo, error) {
	blob, info, err := s.encode(data)
	if err != nil {
		return AssetInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	if err := s.backend.Write(ctx, key, blob); err != nil {
		return AssetInfo{}, fmt.Errorf("put %s: %w", key, err)
	}

	s.cache.Remove(key)
	s.puts.Add(1)
	s.rawBytes.Add(int64(len(data)))
	s.storedBytes.Add(int64(len(blob)))
	if !info.Packed {
		s.storedRaw.Add(1)
	}

	info.Key = key
	info.RawSize = int64(len(data))
	s.logger.Debug("asset stored", "key", key, "packed", info.Packed, "mode", info.Mode,
		"raw", len(data), "stored", len(blob))
	return info, nil
}

// Get returns the decoded bytes stored under key.
func (s *AssetStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	if data, ok := s.cache.Get(key); ok {
		s.cacheHits.Add(1)
		return bytes.Clone(data), nil
	}

	blob, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := s.decode(key, blob)
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, bytes.Clone(data))
	return data, nil
}

// Stat describes the blob stored under key. For sealed assets the inner
// container is described when the store holds the key.
func (s *AssetStore) Stat(ctx context.Context, key string) (AssetInfo, error) {
	blob, err := s.backend.Read(ctx, key)
	if err != nil {
		return AssetInfo{}, err
	}

	info := DescribeBlob(blob)
	if info.Sealed && s.sealer != nil {
		if opened, err := s.sealer.Open(blob); err == nil {
			inner := DescribeBlob(opened)
			info.Packed, info.Mode, info.RawSize = inner.Packed, inner.Mode, inner.RawSize
		}
	}
	info.Key = key
	return info, nil
}

// Delete removes the asset stored under key.
func (s *AssetStore) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns the keys stored under prefix.
func (s *AssetStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// Stats returns a snapshot of the store counters.
func (s *AssetStore) Stats() StoreStats {
	return StoreStats{
		Puts:        s.puts.Load(),
		Gets:        s.gets.Load(),
		CacheHits:   s.cacheHits.Load(),
		RawBytes:    s.rawBytes.Load(),
		StoredBytes: s.storedBytes.Load(),
		StoredRaw:   s.storedRaw.Load(),
	}
}

// Close purges the cache and closes the backend.
func (s *AssetStore) Close() error {
	s.cache.Purge()
	return s.backend.Close()
}
