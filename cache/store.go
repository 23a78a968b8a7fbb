package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

const DefaultTTL = 5 * time.Minute

// Store applies the entry lifetime rules on top of a raw driver. Every failure
// below it is logged and reported as a miss; callers never see cache errors.
type Store struct {
	backend    types.Backend
	driver     types.CacheDriver
	logger     types.Logger
	metrics    types.MetricsManager
	defaultTTL time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

func WithMetrics(metrics types.MetricsManager) StoreOption {
	return func(s *Store) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func NewStore(backend types.Backend, driver types.CacheDriver, logger types.Logger, opts ...StoreOption) *Store {
	s := &Store{
		backend:    backend,
		driver:     driver,
		logger:     logger,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) Backend() types.Backend {
	return s.backend
}

// Read decodes a fresh entry into target. Expired entries are removed.
func (s *Store) Read(key string, target interface{}) bool {
	s.mu.Lock()
	entry, ok := s.load(key)
	s.mu.Unlock()

	if !ok {
		s.record("read", "miss")
		return false
	}

	if target != nil {
		if err := utils.Decode(entry.Data, target); err != nil {
			s.logger.Warn("Cached value does not match target",
				zap.String("backend", s.backend.String()),
				zap.String("key", key),
				zap.Error(err))
			s.record("read", "error")
			return false
		}
	}

	s.record("read", "hit")
	return true
}

// Get returns the cached value for key decoded as T.
func Get[T any](s *Store, key string) (T, bool) {
	var value T
	if !s.Read(key, &value) {
		var zero T
		return zero, false
	}
	return value, true
}

// Write stores data under key. A non-positive ttl selects the default.
func (s *Store) Write(key string, data interface{}, ttl time.Duration) {
	if key == "" {
		s.logger.Warn("Cache write skipped", zap.Error(types.ErrCacheKeyEmpty))
		return
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	payload, err := utils.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to serialize cache value",
			zap.String("backend", s.backend.String()),
			zap.String("key", key),
			zap.Error(err))
		s.record("write", "error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := utils.Marshal(&types.CacheEntry{
		Data:      payload,
		WrittenAt: s.now(),
		TTL:       ttl,
	})
	if err != nil {
		s.logger.Error("Failed to serialize cache entry", zap.String("key", key), zap.Error(err))
		s.record("write", "error")
		return
	}

	if err = s.driver.Set(key, raw); err != nil {
		s.logger.Error("Failed to write cache entry",
			zap.String("backend", s.backend.String()),
			zap.String("key", key),
			zap.Error(err))
		s.record("write", "error")
		return
	}

	s.record("write", "ok")
}

func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(key)
	s.record("invalidate", "ok")
}

// HasValid reports whether key holds a fresh entry.
func (s *Store) HasValid(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.load(key)
	return ok
}

// Keys lists stored keys, including ones that have expired but were not read
// since.
func (s *Store) Keys() []string {
	keys, err := s.driver.Keys()
	if err != nil {
		s.logger.Error("Failed to list cache keys", zap.String("backend", s.backend.String()), zap.Error(err))
		return nil
	}
	return keys
}

func (s *Store) Len() (int, error) {
	return s.driver.Len()
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.Clear(); err != nil {
		s.record("clear", "error")
		return types.WrapError(err, "failed to clear "+s.backend.String()+" cache")
	}

	s.record("clear", "ok")
	return nil
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// load must be called with mu held.
func (s *Store) load(key string) (*types.CacheEntry, bool) {
	if key == "" {
		return nil, false
	}

	raw, found, err := s.driver.Get(key)
	if err != nil {
		s.logger.Error("Failed to read cache entry",
			zap.String("backend", s.backend.String()),
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry types.CacheEntry
	if err = utils.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("Dropping corrupt cache entry",
			zap.String("backend", s.backend.String()),
			zap.String("key", key),
			zap.Error(err))
		s.remove(key)
		return nil, false
	}

	if !entry.ValidAt(s.now()) {
		s.remove(key)
		s.record("evict", "expired")
		return nil, false
	}

	return &entry, true
}

func (s *Store) remove(key string) {
	if key == "" {
		return
	}
	if err := s.driver.Delete(key); err != nil {
		s.logger.Error("Failed to delete cache entry",
			zap.String("backend", s.backend.String()),
			zap.String("key", key),
			zap.Error(err))
	}
}

func (s *Store) record(operation, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Counter("cache_operations_total", map[string]string{
		"backend":   s.backend.String(),
		"operation": operation,
		"result":    result,
	}).Inc()
}
