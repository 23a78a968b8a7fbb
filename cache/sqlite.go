package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
)

var unsafeOriginChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SQLiteDriver is the default persistent scope: one database file per origin.
type SQLiteDriver struct {
	db     *sql.DB
	path   string
	logger types.Logger
}

func NewSQLiteDriver(logger types.Logger, config *types.PersistentCacheConfig) (*SQLiteDriver, error) {
	path, err := sqlitePath(config)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, types.WrapError(err, "failed to create persistent cache directory")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "sqlite: %v", err)
	}

	// go-sqlite3 serializes writers per file; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	d := &SQLiteDriver{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err = d.initDatabase(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize persistent cache")
	}

	logger.Debug("Persistent cache opened", zap.String("path", path))

	return d, nil
}

func sqlitePath(config *types.PersistentCacheConfig) (string, error) {
	origin := "default"
	dir := ""

	if config != nil {
		if config.Origin != "" {
			origin = config.Origin
		}
		dir = config.Path
	}

	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", types.WrapError(err, "failed to resolve user cache directory")
		}
		dir = filepath.Join(base, "sai-trade-client")
	}

	return filepath.Join(dir, unsafeOriginChars.ReplaceAllString(origin, "_")+".db"), nil
}

func (d *SQLiteDriver) initDatabase() error {
	_, err := d.db.Exec(`
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	return err
}

func (d *SQLiteDriver) Path() string {
	return d.path
}

func (d *SQLiteDriver) Get(key string) ([]byte, bool, error) {
	var value []byte

	err := d.db.QueryRow(`SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.WrapError(err, "failed to read persistent cache entry")
	}

	return value, true, nil
}

func (d *SQLiteDriver) Set(key string, value []byte) error {
	_, err := d.db.Exec(`
	INSERT INTO cache_entries (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return types.WrapError(err, "failed to write persistent cache entry")
	}
	return nil
}

func (d *SQLiteDriver) Delete(key string) error {
	if _, err := d.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return types.WrapError(err, "failed to delete persistent cache entry")
	}
	return nil
}

func (d *SQLiteDriver) Keys() ([]string, error) {
	rows, err := d.db.Query(`SELECT key FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, types.WrapError(err, "failed to list persistent cache keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan persistent cache key")
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func (d *SQLiteDriver) Len() (int, error) {
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, types.WrapError(err, "failed to count persistent cache entries")
	}
	return count, nil
}

func (d *SQLiteDriver) Clear() error {
	if _, err := d.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return types.WrapError(err, "failed to clear persistent cache")
	}
	return nil
}

func (d *SQLiteDriver) Close() error {
	if err := d.db.Close(); err != nil {
		return types.WrapError(err, "failed to close persistent cache")
	}
	return nil
}
