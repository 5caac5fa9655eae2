package xpk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xpk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadStoreConfig(t *testing.T) {
	path := writeConfig(t, `
backend: sqlite
mode: backref
cache_size: 32
table_bits: 12
sqlite:
  path: /tmp/catalog.db
  journal_mode: DELETE
encryption:
  enabled: true
  password: swordfish
`)

	cfg, err := LoadStoreConfig(path)
	if err != nil {
		t.Fatalf("LoadStoreConfig failed: %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.Mode != ModeBackref {
		t.Errorf("mode = %s", cfg.Mode)
	}
	if cfg.CacheSize != 32 || cfg.TableBits != 12 {
		t.Errorf("cache=%d tableBits=%d", cfg.CacheSize, cfg.TableBits)
	}
	if cfg.SQLite.Path != "/tmp/catalog.db" || cfg.SQLite.JournalMode != "DELETE" {
		t.Errorf("sqlite = %+v", cfg.SQLite)
	}
	// Unset nested fields keep defaults
	if cfg.SQLite.BusyTimeout != DefaultSQLiteBackendConfig().BusyTimeout {
		t.Errorf("busy timeout = %d", cfg.SQLite.BusyTimeout)
	}
	if !cfg.Encryption.Enabled || cfg.Encryption.KeyPassword != "swordfish" {
		t.Errorf("encryption = %+v", cfg.Encryption)
	}
}

func TestLoadStoreConfig_Defaults(t *testing.T) {
	cfg, err := LoadStoreConfig(writeConfig(t, "dir: ./data\n"))
	if err != nil {
		t.Fatalf("LoadStoreConfig failed: %v", err)
	}
	def := DefaultStoreConfig()
	if cfg.Backend != def.Backend || cfg.Mode != def.Mode || cfg.CacheSize != def.CacheSize {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if cfg.Dir != "./data" {
		t.Errorf("dir = %q", cfg.Dir)
	}
}

func TestLoadStoreConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")
	cfg, err := LoadStoreConfig(writeConfig(t, "backend: memory\nencryption:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("LoadStoreConfig failed: %v", err)
	}
	if cfg.Encryption.KeyPassword != "from-env" {
		t.Errorf("password = %q", cfg.Encryption.KeyPassword)
	}
}

func TestLoadStoreConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "backend: floppy\n"},
		{"bad mode", "mode: zip\n"},
		{"s3 without bucket", "backend: s3\n"},
		{"tiered file without cold dir", "backend: tiered\ncold_backend: file\n"},
		{"unknown cold backend", "backend: tiered\ncold_backend: tape\n"},
		{"malformed yaml", "backend: [file\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadStoreConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadStoreConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  StoreConfig
	}{
		{"memory", StoreConfig{Backend: BackendMemory}},
		{"file", StoreConfig{Backend: BackendFile, Dir: filepath.Join(dir, "files")}},
		{"sqlite", StoreConfig{Backend: BackendSQLite, SQLite: SQLiteBackendConfig{Path: filepath.Join(dir, "a.db")}}},
		{"tiered", StoreConfig{
			Backend:     BackendTiered,
			Dir:         filepath.Join(dir, "hot"),
			ColdBackend: BackendFile,
			ColdDir:     filepath.Join(dir, "cold"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenAssetStore(tt.cfg)
			if err != nil {
				t.Fatalf("OpenAssetStore failed: %v", err)
			}
			defer store.Close()

			ctx := context.Background()
			data := []byte("an asset that is long enough to be worth packing, packing, packing")
			if _, err := store.Put(ctx, "k", data); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != string(data) {
				t.Error("round trip mismatch")
			}
		})
	}
}
