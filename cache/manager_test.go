package cache

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-trade-client/config"
	"github.com/saiset-co/sai-trade-client/logger"
	"github.com/saiset-co/sai-trade-client/metrics"
	"github.com/saiset-co/sai-trade-client/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Cache.Session.Dir = t.TempDir()
	cfg.Cache.Persistent.Path = t.TempDir()

	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)

	m, err := NewManager(context.Background(), cm, logger.NewNop(), metrics.NewNoop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestManagerBackends(t *testing.T) {
	m := newTestManager(t)

	for _, backend := range types.Backends {
		t.Run(backend.String(), func(t *testing.T) {
			m.Write("profile.me", map[string]string{"name": "ada"}, WithBackend(backend), WithTTL(time.Minute))

			var out map[string]string
			require.True(t, m.Read("profile.me", &out, WithBackend(backend)))
			assert.Equal(t, "ada", out["name"])
		})
	}

	stats := m.Stats()
	require.Len(t, stats.Backends, 3)
	assert.Equal(t, 3, stats.Total)
	for _, b := range stats.Backends {
		assert.True(t, b.Available, b.Backend.String())
		assert.Equal(t, 1, b.Entries)
	}
}

func TestManagerClearByPattern(t *testing.T) {
	m := newTestManager(t)

	for _, backend := range types.Backends {
		m.Write("strategies.list", []int{1, 2}, WithBackend(backend))
		m.Write("strategies.42", 42, WithBackend(backend))
		m.Write("profile.me", "ada", WithBackend(backend))
	}

	removed := m.ClearByPattern(regexp.MustCompile(`^strategies\.`))
	assert.Equal(t, 6, removed)

	for _, backend := range types.Backends {
		assert.False(t, m.Read("strategies.list", nil, WithBackend(backend)))
		assert.False(t, m.Read("strategies.42", nil, WithBackend(backend)))
		assert.True(t, m.Read("profile.me", nil, WithBackend(backend)))
	}

	assert.Zero(t, m.ClearByPattern(regexp.MustCompile(`^nothing$`)))
	assert.Zero(t, m.ClearByPattern(nil))
}

func TestManagerClearKeyAndClearAll(t *testing.T) {
	m := newTestManager(t)

	for _, backend := range types.Backends {
		m.Write("a", 1, WithBackend(backend))
		m.Write("b", 2, WithBackend(backend))
	}

	m.ClearKey("a")
	for _, backend := range types.Backends {
		assert.False(t, m.Read("a", nil, WithBackend(backend)))
		assert.True(t, m.Read("b", nil, WithBackend(backend)))
	}

	m.ClearAll()
	assert.Zero(t, m.Stats().Total)
}

func TestManagerUnavailableBackend(t *testing.T) {
	store := NewStore(types.BackendMemory, NewMemoryDriver(nil), logger.NewNop())
	m := NewManagerWithStores(logger.NewNop(), store)

	m.Write("k", "v", WithBackend(types.BackendPersistent))
	assert.False(t, m.Read("k", nil, WithBackend(types.BackendPersistent)))

	_, err := m.Store(types.BackendSession)
	assert.ErrorIs(t, err, types.ErrCacheNotFound)

	stats := m.Stats()
	assert.True(t, stats.Backends[0].Available)
	assert.False(t, stats.Backends[1].Available)
	assert.False(t, stats.Backends[2].Available)
}

func TestManagerUnknownDriver(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Cache.Session.Enabled = false
	cfg.Cache.Persistent.Driver = "sqlite"
	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)

	cfg.Cache.Persistent.Driver = "etcd"
	_, err = NewManager(context.Background(), cm, logger.NewNop(), metrics.NewNoop())
	assert.ErrorIs(t, err, types.ErrCacheDriverUnknown)
}

func TestManagerCustomDriver(t *testing.T) {
	RegisterPersistentDriver("inmem", func(ctx context.Context, logger types.Logger, config *types.PersistentCacheConfig) (types.CacheDriver, error) {
		return NewMemoryDriver(nil), nil
	})

	cfg := config.NewLoader().Defaults()
	cfg.Cache.Session.Enabled = false
	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)
	cfg.Cache.Persistent.Driver = "inmem"

	m, err := NewManager(context.Background(), cm, logger.NewNop(), metrics.NewNoop())
	require.NoError(t, err)
	defer m.Close()

	m.Write("k", "v", WithBackend(types.BackendPersistent))
	assert.True(t, m.Read("k", nil, WithBackend(types.BackendPersistent)))
}

func TestManagerClosed(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Store(types.BackendMemory)
	assert.ErrorIs(t, err, types.ErrCacheClosed)
	assert.Zero(t, m.ClearByPattern(regexp.MustCompile(`.`)))
}
