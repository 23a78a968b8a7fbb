package cache

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-trade-client/types"
)

type DriverCreator func(ctx context.Context, logger types.Logger, config *types.PersistentCacheConfig) (types.CacheDriver, error)

var customDrivers = sync.Map{}

// RegisterPersistentDriver makes an extra persistent driver selectable through
// cache.persistent.driver.
func RegisterPersistentDriver(name string, creator DriverCreator) {
	customDrivers.Store(name, creator)
}

// Manager owns one Store per available backend and applies cross-backend
// operations to all of them. Backend failures are logged and skipped.
type Manager struct {
	logger types.Logger
	stores map[types.Backend]*Store
	closed bool
	mu     sync.RWMutex
}

type Option func(*callOptions)

type callOptions struct {
	ttl     time.Duration
	backend types.Backend
}

func WithTTL(ttl time.Duration) Option {
	return func(o *callOptions) {
		o.ttl = ttl
	}
}

func WithBackend(backend types.Backend) Option {
	return func(o *callOptions) {
		o.backend = backend
	}
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, opts ...StoreOption) (*Manager, error) {
	cacheConfig := config.GetConfig().Cache
	if cacheConfig == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "cache section missing")
	}

	storeOpts := append([]StoreOption{WithDefaultTTL(cacheConfig.DefaultTTL), WithMetrics(metrics)}, opts...)

	m := &Manager{
		logger: logger,
		stores: make(map[types.Backend]*Store),
	}

	m.stores[types.BackendMemory] = NewStore(types.BackendMemory, NewMemoryDriver(cacheConfig.Memory), logger, storeOpts...)

	if cacheConfig.Session != nil && cacheConfig.Session.Enabled {
		driver, err := NewCloverDriver(logger, cacheConfig.Session)
		if err != nil {
			logger.Error("Session cache unavailable", zap.Error(err))
		} else {
			m.stores[types.BackendSession] = NewStore(types.BackendSession, driver, logger, storeOpts...)
		}
	}

	if cacheConfig.Persistent != nil && cacheConfig.Persistent.Enabled {
		driver, err := newPersistentDriver(ctx, logger, cacheConfig.Persistent)
		if err != nil {
			if types.IsError(err, types.ErrCacheDriverUnknown) {
				_ = m.Close()
				return nil, err
			}
			logger.Error("Persistent cache unavailable", zap.Error(err))
		} else {
			m.stores[types.BackendPersistent] = NewStore(types.BackendPersistent, driver, logger, storeOpts...)
		}
	}

	logger.Info("Cache manager initialized",
		zap.Int("backends", len(m.stores)),
		zap.Duration("default_ttl", cacheConfig.DefaultTTL))

	return m, nil
}

// NewManagerWithStores builds a manager over already constructed stores.
func NewManagerWithStores(logger types.Logger, stores ...*Store) *Manager {
	m := &Manager{
		logger: logger,
		stores: make(map[types.Backend]*Store, len(stores)),
	}

	for _, store := range stores {
		m.stores[store.Backend()] = store
	}

	return m
}

func newPersistentDriver(ctx context.Context, logger types.Logger, config *types.PersistentCacheConfig) (types.CacheDriver, error) {
	switch config.Driver {
	case "", "sqlite":
		return NewSQLiteDriver(logger, config)
	case "redis":
		return NewRedisDriver(ctx, logger, config)
	default:
		if creator, ok := customDrivers.Load(config.Driver); ok {
			return creator.(DriverCreator)(ctx, logger, config)
		}
		return nil, types.Errorf(types.ErrCacheDriverUnknown, "driver: %s", config.Driver)
	}
}

func (m *Manager) Store(backend types.Backend) (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrCacheClosed
	}

	store, ok := m.stores[backend]
	if !ok {
		return nil, types.Errorf(types.ErrCacheNotFound, "backend %s is not available", backend)
	}

	return store, nil
}

// Write stores value in the selected backend (memory unless WithBackend).
func (m *Manager) Write(key string, value interface{}, opts ...Option) {
	o := resolveOptions(opts)

	store, err := m.Store(o.backend)
	if err != nil {
		m.logger.Warn("Cache write skipped", zap.String("key", key), zap.Error(err))
		return
	}

	store.Write(key, value, o.ttl)
}

func (m *Manager) Read(key string, target interface{}, opts ...Option) bool {
	o := resolveOptions(opts)

	store, err := m.Store(o.backend)
	if err != nil {
		m.logger.Debug("Cache read skipped", zap.String("key", key), zap.Error(err))
		return false
	}

	return store.Read(key, target)
}

func (m *Manager) ClearAll() {
	for _, store := range m.snapshot() {
		if err := store.Clear(); err != nil {
			m.logger.Error("Failed to clear cache backend",
				zap.String("backend", store.Backend().String()),
				zap.Error(err))
		}
	}
	m.logger.Debug("All cache backends cleared")
}

func (m *Manager) ClearKey(key string) {
	for _, store := range m.snapshot() {
		store.Invalidate(key)
	}
}

// ClearByPattern removes every key matching pattern from every backend and
// returns how many were removed.
func (m *Manager) ClearByPattern(pattern *regexp.Regexp) int {
	if pattern == nil {
		return 0
	}

	removed := 0
	for _, store := range m.snapshot() {
		for _, key := range store.Keys() {
			if pattern.MatchString(key) {
				store.Invalidate(key)
				removed++
			}
		}
	}

	m.logger.Debug("Cache pattern cleared",
		zap.String("pattern", pattern.String()),
		zap.Int("removed", removed))

	return removed
}

func (m *Manager) Stats() types.CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.CacheStats{Backends: make([]types.BackendStats, 0, len(types.Backends))}

	for _, backend := range types.Backends {
		entry := types.BackendStats{Backend: backend}

		if store, ok := m.stores[backend]; ok && !m.closed {
			count, err := store.Len()
			if err != nil {
				m.logger.Error("Failed to count cache entries",
					zap.String("backend", backend.String()),
					zap.Error(err))
			} else {
				entry.Available = true
				entry.Entries = count
				stats.Total += count
			}
		}

		stats.Backends = append(stats.Backends, entry)
	}

	return stats
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stores := make([]*Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.mu.Unlock()

	var g errgroup.Group

	for _, store := range stores {
		g.Go(func() error {
			if err := store.Close(); err != nil {
				m.logger.Error("Failed to close cache backend",
					zap.String("backend", store.Backend().String()),
					zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return types.WrapError(err, "failed to close cache manager")
	}

	m.logger.Info("Cache manager closed")
	return nil
}

func (m *Manager) snapshot() []*Store {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}

	stores := make([]*Store, 0, len(m.stores))
	for _, backend := range types.Backends {
		if store, ok := m.stores[backend]; ok {
			stores = append(stores, store)
		}
	}
	return stores
}

func resolveOptions(opts []Option) callOptions {
	o := callOptions{backend: types.BackendMemory}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
