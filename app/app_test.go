package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-trade-client/config"
	"github.com/saiset-co/sai-trade-client/types"
)

type backend struct {
	ln       *fasthttputil.InmemoryListener
	balances atomic.Int32
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{ln: fasthttputil.NewInmemoryListener()}
	server := &fasthttp.Server{Handler: b.handle}
	go func() { _ = server.Serve(b.ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = b.ln.Close()
	})
	return b
}

func (b *backend) handle(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")

	switch string(ctx.Path()) {
	case "/api/v1/auth/login":
		ctx.SetBodyString(`{"code":0,"message":"ok","data":{"access_token":"tok-app","user":{"id":7}}}`)
	case "/api/v1/account/balances":
		b.balances.Add(1)
		ctx.SetBodyString(`{"code":0,"data":{"total":10000}}`)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"detail":"not found"}`)
	}
}

func (b *backend) dial(string) (net.Conn, error) {
	return b.ln.Dial()
}

func newConfig(t *testing.T, mutate func(*types.ClientConfig)) types.ConfigManager {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Logger.Type = "nop"
	cfg.Cache.Session.Dir = t.TempDir()
	cfg.Cache.Persistent.Path = t.TempDir()
	cfg.Services = map[string]*types.ServiceConfig{
		"auth":    {BaseURL: "http://auth.test"},
		"trading": {BaseURL: "http://trading.test"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)
	return cm
}

func TestAppWiresSessionIntoDispatcher(t *testing.T) {
	b := newBackend(t)

	a, err := New(context.Background(), newConfig(t, nil), WithDialer(b.dial))
	require.NoError(t, err)
	assert.Nil(t, a.Channel)
	assert.Nil(t, a.Poller)

	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), types.ErrAlreadyRunning)

	_, err = a.Dispatcher.Invoke(context.Background(), "login", types.Params{"email": "a@b.c"}, nil)
	require.NoError(t, err)
	assert.True(t, a.Session.IsAuthenticated())

	opts := &types.CallOptions{Cache: &types.CacheOptions{TTL: time.Minute}}
	for i := 0; i < 3; i++ {
		result, err := a.Dispatcher.Invoke(context.Background(), "getBalances", nil, opts)
		require.NoError(t, err)
		assert.JSONEq(t, `{"total":10000}`, string(result.Data))
	}
	assert.Equal(t, int32(1), b.balances.Load())

	stats := a.Cache.Stats()
	assert.Len(t, stats.Backends, 3)

	require.NoError(t, a.Stop())
	assert.ErrorIs(t, a.Stop(), types.ErrNotRunning)
}

func TestAppPollsWhileChannelDown(t *testing.T) {
	b := newBackend(t)

	cm := newConfig(t, func(cfg *types.ClientConfig) {
		cfg.Channel.Enabled = true
		cfg.Channel.URL = "ws://127.0.0.1:1/ws"
		cfg.Channel.MaxRetries = 0
		cfg.Poller.Enabled = true
		cfg.Poller.Jobs = []types.PollerJobConfig{
			{Operation: "getBalances", Schedule: "* * * * * *", TTL: time.Minute},
		}
	})

	a, err := New(context.Background(), cm, WithDialer(b.dial))
	require.NoError(t, err)
	require.NotNil(t, a.Channel)
	require.NotNil(t, a.Poller)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop() })

	assert.False(t, a.Tracker.IsConnected())
	require.Eventually(t, func() bool { return b.balances.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	var out map[string]int
	require.Eventually(t, func() bool {
		return a.Cache.Read("getBalances", &out)
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, 10000, out["total"])

	report := a.Health.Check(context.Background())
	assert.Equal(t, types.StatusUnknown, report.Checks["connection"].Status)
	assert.Equal(t, "channel down, polling", report.Checks["connection"].Message)
}

func TestAppSkipsPollingWhileChannelUp(t *testing.T) {
	b := newBackend(t)

	upgrader := websocket.Upgrader{}
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ws.Close)

	cm := newConfig(t, func(cfg *types.ClientConfig) {
		cfg.Channel.Enabled = true
		cfg.Channel.URL = "ws" + strings.TrimPrefix(ws.URL, "http")
		cfg.Poller.Enabled = true
		cfg.Poller.Jobs = []types.PollerJobConfig{
			{Operation: "getBalances", Schedule: "* * * * * *", TTL: time.Minute},
		}
	})

	a, err := New(context.Background(), cm, WithDialer(b.dial))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.Tracker.IsConnected())

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(0), b.balances.Load())
	assert.Equal(t, types.StatusHealthy, a.Health.Check(context.Background()).Checks["connection"].Status)

	require.NoError(t, a.Stop())
	assert.Equal(t, types.StatusDisconnected, a.Tracker.Status())
}
