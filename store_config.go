package xpk

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend kinds accepted by StoreConfig.Backend and StoreConfig.ColdBackend.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
	BackendTiered = "tiered"
)

// PasswordEnv names the environment variable consulted for the sealing
// password when a config file enables encryption without one.
const PasswordEnv = "XPK_PASSWORD"

// StoreConfig configures an AssetStore and the backend behind it.
type StoreConfig struct {
	// Backend selects the storage backend: file, memory, s3, sqlite or tiered.
	// Default: file.
	Backend string `yaml:"backend"`

	// Dir is the file backend directory, and the hot tier of a tiered store.
	// Default: "assets".
	Dir string `yaml:"dir"`

	// ColdBackend is the cold tier of a tiered store: s3, sqlite or file.
	// Default: s3.
	ColdBackend string `yaml:"cold_backend"`

	// ColdDir is the directory used when ColdBackend is file.
	ColdDir string `yaml:"cold_dir"`

	S3     S3BackendConfig     `yaml:"s3"`
	SQLite SQLiteBackendConfig `yaml:"sqlite"`

	// Mode is the pack mode used by Put unless Auto is set.
	// Default: nested.
	Mode Mode `yaml:"mode"`

	// Auto packs every asset with all modes and keeps the smallest.
	Auto bool `yaml:"auto"`

	// CacheSize is the number of decoded assets kept in memory.
	// Default: 256.
	CacheSize int `yaml:"cache_size"`

	// Codec settings; zero values take the Config defaults.
	TableBits  int   `yaml:"table_bits"`
	MaxDepth   int   `yaml:"max_depth"`
	MaxRawSize int64 `yaml:"max_raw_size"`

	Encryption EncryptionConfig `yaml:"encryption"`

	// Logger receives store and codec logs.
	// Default: slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// DefaultStoreConfig returns a file-backed store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:     BackendFile,
		Dir:         "assets",
		ColdBackend: BackendS3,
		SQLite:      DefaultSQLiteBackendConfig(),
		Mode:        ModeNestedRank,
		CacheSize:   256,
	}
}

func (c *StoreConfig) normalize() {
	def := DefaultStoreConfig()
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	c.ColdBackend = strings.ToLower(strings.TrimSpace(c.ColdBackend))
	if c.ColdBackend == "" {
		c.ColdBackend = def.ColdBackend
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c StoreConfig) codecConfig() Config {
	return Config{
		TableBits:  c.TableBits,
		MaxDepth:   c.MaxDepth,
		MaxRawSize: c.MaxRawSize,
		Logger:     c.Logger,
	}
}

// LoadStoreConfig reads a YAML store configuration. Fields missing from the
// file keep their DefaultStoreConfig values.
func LoadStoreConfig(path string) (StoreConfig, error) {
	cfg := DefaultStoreConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read store config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse store config %s: %w", path, err)
	}

	if cfg.Encryption.Enabled && cfg.Encryption.KeyPassword == "" {
		cfg.Encryption.KeyPassword = os.Getenv(PasswordEnv)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid store config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the backend selection and mode.
func (c StoreConfig) Validate() error {
	c.normalize()
	switch c.Backend {
	case BackendFile, BackendMemory, BackendSQLite:
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 backend requires s3.bucket")
		}
	case BackendTiered:
		switch c.ColdBackend {
		case BackendS3:
			if c.S3.Bucket == "" {
				return errors.New("tiered backend with s3 cold tier requires s3.bucket")
			}
		case BackendSQLite:
		case BackendFile:
			if c.ColdDir == "" {
				return errors.New("tiered backend with file cold tier requires cold_dir")
			}
		default:
			return fmt.Errorf("unknown cold backend %q", c.ColdBackend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if !c.Mode.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, c.Mode)
	}
	return nil
}

// OpenBackend builds the storage backend selected by cfg.
func OpenBackend(cfg StoreConfig) (StorageBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendS3:
		return NewS3Backend(cfg.S3)
	case BackendSQLite:
		return NewSQLiteBackend(cfg.SQLite)
	case BackendTiered:
		hot, err := NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, err
		}
		cold, err := openColdBackend(cfg)
		if err != nil {
			return nil, err
		}
		return NewTieredBackend(hot, cold), nil
	default:
		return NewFileBackend(cfg.Dir)
	}
}

func openColdBackend(cfg StoreConfig) (StorageBackend, error) {
	switch cfg.ColdBackend {
	case BackendSQLite:
		return NewSQLiteBackend(cfg.SQLite)
	case BackendFile:
		return NewFileBackend(cfg.ColdDir)
	default:
		return NewS3Backend(cfg.S3)
	}
}

// OpenAssetStore opens the configured backend and wraps it in an AssetStore.
func OpenAssetStore(cfg StoreConfig) (*AssetStore, error) {
	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewAssetStore(backend, cfg)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}
