package xpk

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
)

func newTestStore(t *testing.T, cfg StoreConfig) (*AssetStore, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	store, err := NewAssetStore(backend, cfg)
	if err != nil {
		t.Fatalf("NewAssetStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, backend
}

func TestAssetStore_PutGet(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noise := make([]byte, 512)
	rng.Read(noise)

	tests := []struct {
		name       string
		data       []byte
		wantPacked bool
	}{
		{"text", bytes.Repeat([]byte("the quick brown fox "), 50), true},
		{"tiny", []byte("hi"), false},
		{"empty", []byte{}, false},
		{"noise", noise, false},
	}

	for _, mode := range Modes {
		t.Run(mode.String(), func(t *testing.T) {
			store, backend := newTestStore(t, StoreConfig{Mode: mode})
			ctx := context.Background()

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					info, err := store.Put(ctx, tt.name, tt.data)
					if err != nil {
						t.Fatalf("Put failed: %v", err)
					}
					if info.Packed != tt.wantPacked {
						t.Errorf("packed = %v, want %v", info.Packed, tt.wantPacked)
					}
					if info.RawSize != int64(len(tt.data)) {
						t.Errorf("raw size = %d, want %d", info.RawSize, len(tt.data))
					}

					blob, _ := backend.Read(ctx, tt.name)
					if IsPacked(blob) != tt.wantPacked {
						t.Errorf("stored blob packed = %v", IsPacked(blob))
					}

					got, err := store.Get(ctx, tt.name)
					if err != nil {
						t.Fatalf("Get failed: %v", err)
					}
					if !bytes.Equal(got, tt.data) {
						t.Error("round trip mismatch")
					}
				})
			}
		})
	}
}

func TestAssetStore_SignatureData(t *testing.T) {
	packed, err := Pack(bytes.Repeat([]byte("the quick brown fox "), 50), ModeNestedRank)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	rng := rand.New(rand.NewSource(21))
	junk := make([]byte, 60)
	rng.Read(junk)

	tests := []struct {
		name string
		data []byte
	}{
		{"packed container", packed},
		{"container signature", append([]byte("xpkd"), junk...)},
		{"sealed tag", append([]byte("XENC"), junk...)},
	}

	configs := map[string]StoreConfig{
		"rank":   {Mode: ModeRank},
		"nested": {Mode: ModeNestedRank},
		"auto":   {Auto: true},
	}

	for cfgName, cfg := range configs {
		t.Run(cfgName, func(t *testing.T) {
			store, backend := newTestStore(t, cfg)
			ctx := context.Background()

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					if _, err := store.Put(ctx, tt.name, tt.data); err != nil {
						t.Fatalf("Put failed: %v", err)
					}
					blob, _ := backend.Read(ctx, tt.name)
					if !IsPacked(blob) {
						t.Error("expected the stored blob to be a container")
					}

					store.cache.Purge()
					got, err := store.Get(ctx, tt.name)
					if err != nil {
						t.Fatalf("Get failed: %v", err)
					}
					if !bytes.Equal(got, tt.data) {
						t.Errorf("Get returned %d bytes, want the %d put", len(got), len(tt.data))
					}
				})
			}
		})
	}
}

func TestAssetStore_Cache(t *testing.T) {
	store, backend := newTestStore(t, StoreConfig{CacheSize: 2})
	ctx := context.Background()
	data := bytes.Repeat([]byte("cached asset "), 20)

	if _, err := store.Put(ctx, "a", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	first, _ := store.Get(ctx, "a")
	first[0] = 'X'

	second, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(second, data) {
		t.Error("cached value was mutated through a returned slice")
	}

	stats := store.Stats()
	if stats.Gets != 2 || stats.CacheHits != 1 {
		t.Errorf("gets=%d hits=%d, want 2 and 1", stats.Gets, stats.CacheHits)
	}

	// Put invalidates the cached copy
	_, _ = store.Put(ctx, "a", []byte("replacement"))
	got, _ := store.Get(ctx, "a")
	if string(got) != "replacement" {
		t.Errorf("expected replacement, got %q", got)
	}

	// Delete removes from cache and backend
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
	if backend.Size() != 0 {
		t.Errorf("expected empty backend, got %d", backend.Size())
	}
}

func TestAssetStore_Auto(t *testing.T) {
	store, backend := newTestStore(t, StoreConfig{Auto: true})
	ctx := context.Background()

	data := bytes.Repeat([]byte("abcdefgh"), 256)
	info, err := store.Put(ctx, "repeat", data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, best, err := store.Codec().PackBest(data)
	if err != nil {
		t.Fatalf("PackBest failed: %v", err)
	}
	if info.Mode != best {
		t.Errorf("auto store used %s, best is %s", info.Mode, best)
	}

	blob, _ := backend.Read(ctx, "repeat")
	if int64(len(blob)) != info.Size {
		t.Errorf("info size %d, stored %d", info.Size, len(blob))
	}
}

func TestAssetStore_Sealed(t *testing.T) {
	cfg := StoreConfig{
		Mode:       ModeBackref,
		Encryption: EncryptionConfig{Enabled: true, KeyPassword: "asset-key"},
	}
	store, backend := newTestStore(t, cfg)
	ctx := context.Background()

	data := bytes.Repeat([]byte("secret level layout "), 30)
	info, err := store.Put(ctx, "level", data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !info.Sealed || !info.Packed {
		t.Errorf("expected sealed packed asset, got %+v", info)
	}

	blob, _ := backend.Read(ctx, "level")
	if !IsSealed(blob) {
		t.Fatal("stored blob is not sealed")
	}
	if bytes.Contains(blob, []byte("secret")) {
		t.Error("sealed blob leaks plaintext")
	}

	got, err := store.Get(ctx, "level")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}

	stat, err := store.Stat(ctx, "level")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !stat.Sealed || !stat.Packed || stat.Mode != ModeBackref || stat.RawSize != int64(len(data)) {
		t.Errorf("unexpected stat: %+v", stat)
	}

	// A store without the key sees the blob but cannot open it
	keyless, err := NewAssetStore(backend, StoreConfig{})
	if err != nil {
		t.Fatalf("NewAssetStore failed: %v", err)
	}
	if _, err := keyless.Get(ctx, "level"); !errors.Is(err, ErrSealedAsset) {
		t.Errorf("expected ErrSealedAsset, got %v", err)
	}
	stat, _ = keyless.Stat(ctx, "level")
	if !stat.Sealed || stat.Packed {
		t.Errorf("keyless stat: %+v", stat)
	}
}

func TestAssetStore_CorruptBlob(t *testing.T) {
	store, backend := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	data := bytes.Repeat([]byte("xyz"), 100)
	if _, err := store.Put(ctx, "asset", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	blob, _ := backend.Read(ctx, "asset")
	_ = backend.Write(ctx, "asset", blob[:len(blob)-5])

	_, err := store.Get(ctx, "asset")
	if !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("expected ErrTruncatedInput, got %v", err)
	}
}

func TestAssetStore_Stats(t *testing.T) {
	store, _ := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	text := bytes.Repeat([]byte("stats "), 100)
	_, _ = store.Put(ctx, "a", text)
	_, _ = store.Put(ctx, "b", []byte("tiny"))

	stats := store.Stats()
	if stats.Puts != 2 {
		t.Errorf("expected 2 puts, got %d", stats.Puts)
	}
	if stats.StoredRaw != 1 {
		t.Errorf("expected 1 raw put, got %d", stats.StoredRaw)
	}
	if stats.RawBytes != int64(len(text)+4) {
		t.Errorf("raw bytes = %d", stats.RawBytes)
	}
	if stats.StoredBytes >= stats.RawBytes {
		t.Errorf("stored %d bytes for %d raw", stats.StoredBytes, stats.RawBytes)
	}

	keys, _ := store.List(ctx, "")
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}
}

func TestNewAssetStore_Invalid(t *testing.T) {
	if _, err := NewAssetStore(nil, StoreConfig{}); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := NewAssetStore(NewMemoryBackend(), StoreConfig{Mode: 9}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	_, err := NewAssetStore(NewMemoryBackend(), StoreConfig{Encryption: EncryptionConfig{Enabled: true}})
	if err == nil {
		t.Error("expected error for encryption without key")
	}
}

func TestDescribeBlob(t *testing.T) {
	packed, err := Pack(bytes.Repeat([]byte{1, 2, 3}, 50), ModeNestedRank)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	tests := []struct {
		name    string
		blob    []byte
		packed  bool
		sealed  bool
		rawSize int64
	}{
		{"packed", packed, true, false, 150},
		{"plain", []byte("plain text"), false, false, 10},
		{"bad header", []byte("xpkd but not a valid header"), false, false, 27},
		{"sealed", append(MagicSealed[:], make([]byte, SealedHeaderSize)...), false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DescribeBlob(tt.blob)
			if info.Packed != tt.packed || info.Sealed != tt.sealed || info.RawSize != tt.rawSize {
				t.Errorf("DescribeBlob = %+v", info)
			}
			if info.Size != int64(len(tt.blob)) {
				t.Errorf("size = %d, want %d", info.Size, len(tt.blob))
			}
		})
	}
}
