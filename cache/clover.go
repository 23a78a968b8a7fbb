package cache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
)

const cloverCollection = "cache_entries"

// CloverDriver backs the session scope. Each driver owns a fresh directory
// that is removed on Close, so nothing outlives the session.
type CloverDriver struct {
	db     *clover.DB
	dir    string
	logger types.Logger
	closed bool
	mu     sync.Mutex
}

func NewCloverDriver(logger types.Logger, config *types.SessionCacheConfig) (*CloverDriver, error) {
	base := os.TempDir()
	if config != nil && config.Dir != "" {
		base = config.Dir
	}

	dir := filepath.Join(base, "session-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, types.WrapError(err, "failed to create session cache directory")
	}

	db, err := clover.Open(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "clover: %v", err)
	}

	if err = db.CreateCollection(cloverCollection); err != nil {
		_ = db.Close()
		_ = os.RemoveAll(dir)
		return nil, types.WrapError(err, "failed to create session cache collection")
	}

	logger.Debug("Session cache opened", zap.String("dir", dir))

	return &CloverDriver{
		db:     db,
		dir:    dir,
		logger: logger,
	}, nil
}

func (c *CloverDriver) Dir() string {
	return c.dir
}

func (c *CloverDriver) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, types.ErrCacheClosed
	}

	doc, err := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, false, types.WrapError(err, "failed to query session cache")
	}
	if doc == nil {
		return nil, false, nil
	}

	value, ok := doc.Get("value").(string)
	if !ok {
		return nil, false, types.Errorf(types.ErrCacheOperationFailed, "malformed session document for %s", key)
	}

	return []byte(value), true, nil
}

func (c *CloverDriver) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return types.ErrCacheClosed
	}

	if err := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
		return types.WrapError(err, "failed to replace session cache entry")
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("value", string(value))

	if err := c.db.Insert(cloverCollection, doc); err != nil {
		return types.WrapError(err, "failed to insert session cache entry")
	}

	return nil
}

func (c *CloverDriver) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return types.ErrCacheClosed
	}

	if err := c.db.Query(cloverCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
		return types.WrapError(err, "failed to delete session cache entry")
	}

	return nil
}

func (c *CloverDriver) Keys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, types.ErrCacheClosed
	}

	docs, err := c.db.Query(cloverCollection).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to list session cache entries")
	}

	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		if key, ok := doc.Get("key").(string); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (c *CloverDriver) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, types.ErrCacheClosed
	}

	count, err := c.db.Query(cloverCollection).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count session cache entries")
	}

	return count, nil
}

func (c *CloverDriver) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return types.ErrCacheClosed
	}

	if err := c.db.Query(cloverCollection).Delete(); err != nil {
		return types.WrapError(err, "failed to clear session cache")
	}

	return nil
}

// Close releases the database and removes its directory.
func (c *CloverDriver) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close session cache", zap.Error(err))
	}

	if err := os.RemoveAll(c.dir); err != nil {
		return types.WrapError(err, "failed to remove session cache directory")
	}

	c.logger.Debug("Session cache removed", zap.String("dir", c.dir))

	return nil
}
