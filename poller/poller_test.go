package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/config"
	"github.com/saiset-co/sai-trade-client/logger"
	"github.com/saiset-co/sai-trade-client/metrics"
	"github.com/saiset-co/sai-trade-client/types"
)

type call struct {
	operation string
	params    types.Params
	opts      *types.CallOptions
}

type fakeInvoker struct {
	cache *cache.Manager
	err   error

	mu    sync.Mutex
	calls []call
}

func (f *fakeInvoker) Invoke(_ context.Context, operation string, params types.Params, opts *types.CallOptions) (*types.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{operation: operation, params: params, opts: opts})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	data := json.RawMessage(`{"fresh":true}`)
	if f.cache != nil && opts.Cache != nil {
		f.cache.Write(opts.Cache.Key, data, cache.WithTTL(opts.Cache.TTL), cache.WithBackend(opts.Cache.Backend))
	}
	return &types.Result{Operation: operation, Status: 200, Data: data}, nil
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStatus struct {
	connected atomic.Bool
}

func (f *fakeStatus) IsConnected() bool {
	return f.connected.Load()
}

func newConfig(t *testing.T, jobs ...types.PollerJobConfig) types.ConfigManager {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Poller = &types.PollerConfig{Enabled: true, Jobs: jobs}

	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)
	return cm
}

func newCache() *cache.Manager {
	return cache.NewManagerWithStores(logger.NewNop(),
		cache.NewStore(types.BackendMemory, cache.NewMemoryDriver(nil), logger.NewNop()))
}

func TestJobsFromConfig(t *testing.T) {
	cm := newConfig(t,
		types.PollerJobConfig{Operation: "getBalances", Schedule: "*/10 * * * * *", TTL: time.Minute},
		types.PollerJobConfig{Operation: "getTicker", Schedule: "@every 5s", Params: map[string]interface{}{"symbol": "BTCUSDT"}, Backend: "memory"},
	)

	p, err := NewPoller(cm, logger.NewNop(), nil, &fakeInvoker{}, nil)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, job := range p.Jobs() {
		names = append(names, job.Name)
	}
	assert.ElementsMatch(t, []string{"getBalances", `getTicker.{"symbol":"BTCUSDT"}`}, names)

	_, ok := p.NextRun("getBalances")
	assert.True(t, ok)
	_, ok = p.NextRun("missing")
	assert.False(t, ok)
}

func TestInvalidJobs(t *testing.T) {
	p, err := NewPoller(newConfig(t), logger.NewNop(), nil, &fakeInvoker{}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Add(&Job{Schedule: "* * * * * *"}), types.ErrPollerJobInvalid)
	assert.ErrorIs(t, p.Add(&Job{Operation: "getOrders", Schedule: "not a schedule"}), types.ErrPollerJobInvalid)

	require.NoError(t, p.Add(&Job{Operation: "getOrders", Schedule: "@every 1m"}))
	assert.ErrorIs(t, p.Add(&Job{Operation: "getOrders", Schedule: "@every 2m"}), types.ErrPollerJobInvalid)
}

func TestTickSkipsWhileConnected(t *testing.T) {
	invoker := &fakeInvoker{}
	status := &fakeStatus{}
	status.connected.Store(true)

	p, err := NewPoller(newConfig(t), logger.NewNop(), nil, invoker, status)
	require.NoError(t, err)

	job := &Job{Operation: "getPositions", Schedule: "@every 1m"}
	require.NoError(t, p.Add(job))

	p.Tick(job)
	assert.Equal(t, 0, invoker.count())

	status.connected.Store(false)
	p.Tick(job)
	assert.Equal(t, 1, invoker.count())
}

func TestTickRefreshesStaleEntry(t *testing.T) {
	cacheManager := newCache()
	invoker := &fakeInvoker{cache: cacheManager}

	p, err := NewPoller(newConfig(t), logger.NewNop(), nil, invoker, &fakeStatus{})
	require.NoError(t, err)

	job := &Job{Operation: "getKlines", Schedule: "@every 1m", Params: types.Params{"symbol": "ETHUSDT"}, TTL: time.Minute}
	require.NoError(t, p.Add(job))

	key := `getKlines.{"symbol":"ETHUSDT"}`
	cacheManager.Write(key, map[string]bool{"fresh": false})

	p.Tick(job)

	require.Equal(t, 1, invoker.count())
	got := invoker.calls[0]
	assert.Equal(t, "getKlines", got.operation)
	assert.True(t, got.opts.Retry)
	require.NotNil(t, got.opts.Cache)
	assert.Equal(t, key, got.opts.Cache.Key)
	assert.Equal(t, time.Minute, got.opts.Cache.TTL)
	assert.Equal(t, types.BackendMemory, got.opts.Cache.Backend)
	assert.True(t, got.opts.Cache.Refresh)

	var out map[string]bool
	require.True(t, cacheManager.Read(key, &out))
	assert.True(t, out["fresh"])
}

func TestTickFailureKeepsCachedEntry(t *testing.T) {
	cacheManager := newCache()
	invoker := &fakeInvoker{cache: cacheManager, err: errors.New("service down")}

	p, err := NewPoller(newConfig(t), logger.NewNop(), nil, invoker, &fakeStatus{})
	require.NoError(t, err)

	job := &Job{Operation: "getPositions", Schedule: "@every 1m", TTL: time.Minute}
	require.NoError(t, p.Add(job))

	cacheManager.Write("getPositions", map[string]int{"open": 3}, cache.WithTTL(time.Minute))

	p.Tick(job)

	require.Equal(t, 1, invoker.count())
	var out map[string]int
	require.True(t, cacheManager.Read("getPositions", &out))
	assert.Equal(t, 3, out["open"])
}

func TestTickFailureIsRecorded(t *testing.T) {
	manager := metrics.NewManager(logger.NewNop(), &types.MetricsConfig{Enabled: true, Namespace: "test"})
	invoker := &fakeInvoker{err: errors.New("service down")}

	p, err := NewPoller(newConfig(t), logger.NewNop(), manager, invoker, nil)
	require.NoError(t, err)

	job := &Job{Operation: "getAlerts", Schedule: "@every 1m"}
	require.NoError(t, p.Add(job))

	p.Tick(job)

	counter := manager.Counter("poller_ticks_total", map[string]string{"operation": "getAlerts", "result": "error"})
	assert.Equal(t, float64(1), counter.Get())
}

func TestScheduledPolling(t *testing.T) {
	invoker := &fakeInvoker{}
	cm := newConfig(t, types.PollerJobConfig{Operation: "getNotifications", Schedule: "* * * * * *"})

	p, err := NewPoller(cm, logger.NewNop(), nil, invoker, &fakeStatus{})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), types.ErrPollerAlreadyActive)

	require.Eventually(t, func() bool { return invoker.count() >= 1 }, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.ErrorIs(t, p.Stop(), types.ErrNotRunning)
}
