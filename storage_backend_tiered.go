package xpk

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// TieredBackend keeps recently written assets in a fast hot tier and
// offloads them to a cold tier on demand. Reads fall through to the cold
// tier and promote what they find.
type TieredBackend struct {
	hot  StorageBackend // Fast local storage for recent assets
	cold StorageBackend // Slow remote storage for archived assets
}

// NewTieredBackend creates a tiered storage backend.
func NewTieredBackend(hot, cold StorageBackend) *TieredBackend {
	return &TieredBackend{
		hot:  hot,
		cold: cold,
	}
}

func (t *TieredBackend) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := t.hot.Read(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, err
	}

	data, err = t.cold.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	// Promote to hot storage
	_ = t.hot.Write(ctx, key, data)
	return data, nil
}

func (t *TieredBackend) Write(ctx context.Context, key string, data []byte) error {
	return t.hot.Write(ctx, key, data)
}

func (t *TieredBackend) Delete(ctx context.Context, key string) error {
	errHot := t.hot.Delete(ctx, key)
	errCold := t.cold.Delete(ctx, key)
	if errHot != nil {
		return errHot
	}
	return errCold
}

func (t *TieredBackend) List(ctx context.Context, prefix string) ([]string, error) {
	hotKeys, err := t.hot.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	coldKeys, err := t.cold.List(ctx, prefix)
	if err != nil {
		return hotKeys, nil // Return hot keys even if cold fails
	}

	seen := make(map[string]bool, len(hotKeys))
	for _, k := range hotKeys {
		seen[k] = true
	}
	for _, k := range coldKeys {
		if !seen[k] {
			hotKeys = append(hotKeys, k)
		}
	}
	sort.Strings(hotKeys)
	return hotKeys, nil
}

func (t *TieredBackend) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := t.hot.Exists(ctx, key)
	if err == nil && exists {
		return true, nil
	}
	return t.cold.Exists(ctx, key)
}

// Offload moves every hot asset under prefix to the cold tier and returns
// the number moved.
func (t *TieredBackend) Offload(ctx context.Context, prefix string) (int, error) {
	keys, err := t.hot.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		data, err := t.hot.Read(ctx, key)
		if err != nil {
			return moved, fmt.Errorf("offload %s: %w", key, err)
		}
		if err := t.cold.Write(ctx, key, data); err != nil {
			return moved, fmt.Errorf("offload %s: %w", key, err)
		}
		if err := t.hot.Delete(ctx, key); err != nil {
			return moved, fmt.Errorf("offload %s: %w", key, err)
		}
		moved++
	}
	return moved, nil
}

func (t *TieredBackend) Close() error {
	errHot := t.hot.Close()
	errCold := t.cold.Close()
	if errHot != nil {
		return errHot
	}
	return errCold
}
