package xpk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteBackendConfig configures the SQLite storage backend.
type SQLiteBackendConfig struct {
	// Path to the SQLite database file
	Path string `yaml:"path"`

	// CacheSize is the SQLite page cache size in KB (default: 2000 = 2MB)
	CacheSize int `yaml:"cache_size"`

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string `yaml:"journal_mode"`

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL, EXTRA)
	Synchronous string `yaml:"synchronous"`

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int `yaml:"busy_timeout"`

	// MaxConnections is the max number of database connections
	MaxConnections int `yaml:"max_connections"`
}

// DefaultSQLiteBackendConfig returns default configuration.
func DefaultSQLiteBackendConfig() SQLiteBackendConfig {
	return SQLiteBackendConfig{
		Path:           "assets.db",
		CacheSize:      2000,
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

var errBackendClosed = errors.New("backend is closed")

// SQLiteBackend implements StorageBackend using SQLite. Every blob row also
// records what its container header says, so the catalog can be queried
// with standard SQLite tools without decoding anything.
type SQLiteBackend struct {
	db     *sql.DB
	config SQLiteBackendConfig
	mu     sync.RWMutex
	closed bool

	insertStmt *sql.Stmt
	selectStmt *sql.Stmt
	deleteStmt *sql.Stmt
	existsStmt *sql.Stmt
}

// NewSQLiteBackend creates a new SQLite-based storage backend.
func NewSQLiteBackend(config SQLiteBackendConfig) (*SQLiteBackend, error) {
	def := DefaultSQLiteBackendConfig()
	if config.Path == "" {
		config.Path = def.Path
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.JournalMode == "" {
		config.JournalMode = def.JournalMode
	}
	if config.Synchronous == "" {
		config.Synchronous = def.Synchronous
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = def.BusyTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = def.MaxConnections
	}

	// Pragmas are applied to every pooled connection
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(%s)&_pragma=cache_size(-%d)",
		config.Path, config.BusyTimeout, config.JournalMode, config.Synchronous, config.CacheSize)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	backend := &SQLiteBackend{
		db:     db,
		config: config,
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		backend.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS assets (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			size INTEGER NOT NULL,
			packed INTEGER NOT NULL,
			sealed INTEGER NOT NULL,
			mode INTEGER NOT NULL,   -- -1 when not packed
			raw_size INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_assets_mode ON assets(mode);
		CREATE INDEX IF NOT EXISTS idx_assets_updated ON assets(updated_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO assets (key, data, size, packed, sealed, mode, raw_size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			packed = excluded.packed,
			sealed = excluded.sealed,
			mode = excluded.mode,
			raw_size = excluded.raw_size,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.selectStmt, err = s.db.Prepare(`SELECT data FROM assets WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare select statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM assets WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.existsStmt, err = s.db.Prepare(`SELECT 1 FROM assets WHERE key = ? LIMIT 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare exists statement: %w", err)
	}

	return nil
}

func (s *SQLiteBackend) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errBackendClosed
	}
	return nil
}

// Read reads an asset blob from storage.
func (s *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.selectStmt.QueryRowContext(ctx, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// Write stores an asset blob along with its container metadata.
func (s *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	info := DescribeBlob(data)
	mode := -1
	if info.Packed {
		mode = int(info.Mode)
	}

	now := time.Now().UnixNano()
	_, err := s.insertStmt.ExecContext(ctx, key, data, len(data),
		info.Packed, info.Sealed, mode, info.RawSize, now, now)
	if err != nil {
		return fmt.Errorf("failed to write asset: %w", err)
	}
	return nil
}

// Delete removes an asset blob from storage.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

// likePrefix escapes LIKE wildcards in a key prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// List returns all asset keys matching a prefix.
func (s *SQLiteBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM assets WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Exists checks if an asset exists.
func (s *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	var exists int
	err := s.existsStmt.QueryRowContext(ctx, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// Catalog returns the stored metadata for every asset under prefix without
// reading the blobs.
func (s *SQLiteBackend) Catalog(ctx context.Context, prefix string) ([]AssetInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size, packed, sealed, mode, raw_size, updated_at
		FROM assets WHERE key LIKE ? ESCAPE '\' ORDER BY key
	`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var infos []AssetInfo
	for rows.Next() {
		var info AssetInfo
		var mode int
		var updated int64
		if err := rows.Scan(&info.Key, &info.Size, &info.Packed, &info.Sealed, &mode, &info.RawSize, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		if info.Packed {
			info.Mode = Mode(mode)
		}
		info.UpdatedAt = time.Unix(0, updated)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteBackend) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.selectStmt, s.deleteStmt, s.existsStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close releases any resources.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.closeStatements()
	return s.db.Close()
}

// Vacuum performs database maintenance.
func (s *SQLiteBackend) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errBackendClosed
	}

	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// SQLiteStats contains catalog statistics.
type SQLiteStats struct {
	AssetCount   int64          `json:"asset_count"`
	StoredBytes  int64          `json:"stored_bytes"`
	RawBytes     int64          `json:"raw_bytes"` // sealed assets count as 0
	PackedCount  int64          `json:"packed_count"`
	SealedCount  int64          `json:"sealed_count"`
	ByMode       map[Mode]int64 `json:"by_mode"`
	DatabaseSize int64          `json:"database_size"`
}

// Stats returns catalog statistics.
func (s *SQLiteBackend) Stats(ctx context.Context) (*SQLiteStats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stats := &SQLiteStats{ByMode: make(map[Mode]int64)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(raw_size), 0),
			COALESCE(SUM(packed), 0), COALESCE(SUM(sealed), 0)
		FROM assets
	`)
	if err := row.Scan(&stats.AssetCount, &stats.StoredBytes, &stats.RawBytes,
		&stats.PackedCount, &stats.SealedCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT mode, COUNT(*) FROM assets WHERE packed = 1 GROUP BY mode`)
	if err != nil {
		return nil, fmt.Errorf("failed to query modes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode int
		var count int64
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, err
		}
		stats.ByMode[Mode(mode)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Not all builds expose the pragma table functions
	row = s.db.QueryRowContext(ctx, `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`)
	_ = row.Scan(&stats.DatabaseSize)

	return stats, nil
}
