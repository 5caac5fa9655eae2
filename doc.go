// Package xpk packs game and application assets into a compact container
// format and stores them behind pluggable storage backends.
//
// A packed buffer starts with a 16-byte header tagged "xpkd" and holds one
// of three encodings:
//
//   - [ModeRank] replaces each byte with its rank in a frequency-ordered
//     dictionary and writes the ranks as variable-length bit codes.
//   - [ModeNestedRank] additionally rank-codes the stream of code lengths,
//     keeping whichever of the two layouts is smaller.
//   - [ModeBackref] replaces repeated byte runs with short back-references
//     and packs the resulting token stream with [ModeNestedRank].
//
// # Basic Usage
//
// Pack and unpack a buffer:
//
//	packed, err := xpk.Pack(data, xpk.ModeBackref)
//	if errors.Is(err, xpk.ErrNotCompressible) {
//	    packed = data // store verbatim
//	}
//
//	data, err = xpk.Load(packed)
//
// [Load] accepts both packed and unpacked buffers and peels containers that
// were packed more than once.
//
// # Asset Store
//
// [AssetStore] packs assets on write, unpacks them on read and caches the
// decoded bytes:
//
//	store, err := xpk.OpenAssetStore(xpk.DefaultStoreConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	info, err := store.Put(ctx, "maps/level1.map", mapData)
//	data, err := store.Get(ctx, "maps/level1.map")
//
// Backends:
//   - File, memory, S3 and SQLite storage
//   - Tiered storage with hot and cold tiers
//   - Optional AES-256-GCM sealing of stored assets
//
// # Configuration
//
// Use [Config] to tune the codec and [StoreConfig] (optionally loaded from
// YAML with [LoadStoreConfig]) to select a backend. Zero values take the
// defaults from [DefaultConfig] and [DefaultStoreConfig].
package xpk
