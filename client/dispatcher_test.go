package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/config"
	"github.com/saiset-co/sai-trade-client/logger"
	"github.com/saiset-co/sai-trade-client/metrics"
	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

type harness struct {
	dispatcher *Dispatcher
	cache      *cache.Manager
	hits       *atomic.Int32
	metrics    types.MetricsManager
}

func testConfig(t *testing.T, mutate func(*types.ClientConfig)) types.ConfigManager {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Services = map[string]*types.ServiceConfig{
		"auth":         {BaseURL: "http://auth.test"},
		"trading":      {BaseURL: "http://trading.test"},
		"market":       {BaseURL: "http://market.test"},
		"notification": {BaseURL: "http://notification.test"},
	}
	cfg.Client.DefaultTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	cm, err := config.NewStaticManager(cfg)
	require.NoError(t, err)
	return cm
}

func newHarness(t *testing.T, handler fasthttp.RequestHandler, mutate func(*types.ClientConfig), opts ...Option) *harness {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	hits := &atomic.Int32{}

	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			hits.Add(1)
			handler(ctx)
		},
	}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		_ = server.Shutdown()
		_ = ln.Close()
	})

	store := cache.NewStore(types.BackendMemory, cache.NewMemoryDriver(nil), logger.NewNop())
	cacheManager := cache.NewManagerWithStores(logger.NewNop(), store)
	m := metrics.NewManager(logger.NewNop(), &types.MetricsConfig{Enabled: true, Namespace: "test"})

	base := []Option{
		WithDialer(func(addr string) (net.Conn, error) { return ln.Dial() }),
		WithCache(cacheManager),
		WithMetrics(m),
	}

	d, err := NewDispatcher(testConfig(t, mutate), logger.NewNop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return &harness{dispatcher: d, cache: cacheManager, hits: hits, metrics: m}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(body)
}

func TestInvokeUnknownOperation(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) { writeJSON(ctx, 200, `{}`) }, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "launchRocket", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Equal(t, KindUnknownOperation, KindOf(err))
	assert.Zero(t, h.hits.Load())
}

func TestInvokeBuildsRequestAndUnwrapsEnvelope(t *testing.T) {
	var (
		mu       sync.Mutex
		captured struct {
			method, path, query, auth, requestID, encoding string
		}
	)

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		captured.method = string(ctx.Method())
		captured.path = string(ctx.Path())
		captured.query = string(ctx.QueryArgs().QueryString())
		captured.auth = string(ctx.Request.Header.Peek("Authorization"))
		captured.requestID = string(ctx.Request.Header.Peek("X-Request-ID"))
		captured.encoding = string(ctx.Request.Header.Peek("Accept-Encoding"))
		mu.Unlock()

		writeJSON(ctx, 200, `{"code":0,"message":"ok","data":{"open":1.5,"close":2.5},"timestamp":1700000000,"request_id":"srv-1"}`)
	}, nil, WithTokenSource(staticToken("tok-123")))

	type kline struct {
		Open  float64 `json:"open"`
		Close float64 `json:"close"`
	}

	got, err := InvokeAs[kline](context.Background(), h.dispatcher, "getKlines",
		types.Params{"symbol": "BTCUSDT", "interval": "1h", "limit": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, kline{Open: 1.5, Close: 2.5}, got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "GET", captured.method)
	assert.Equal(t, "/api/v1/markets/BTCUSDT/klines", captured.path)
	assert.Equal(t, "interval=1h&limit=2", captured.query)
	assert.Equal(t, "Bearer tok-123", captured.auth)
	assert.Len(t, captured.requestID, 36)
	assert.Equal(t, "br, gzip", captured.encoding)
}

func TestInvokeFormatsJSONNumbersPlainly(t *testing.T) {
	var (
		mu  sync.Mutex
		uri string
	)

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		uri = string(ctx.RequestURI())
		mu.Unlock()
		writeJSON(ctx, 200, `{"code":0,"data":{}}`)
	}, nil)

	var params types.Params
	require.NoError(t, utils.Decode([]byte(`{"id":12345678,"limit":1000000,"price":0.00001}`), &params))

	_, err := h.dispatcher.Invoke(context.Background(), "getOrder", params, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/v1/orders/12345678?limit=1000000&price=0.00001", uri)
}

func TestInvokeJSONBodyForMutations(t *testing.T) {
	var body []byte
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		body = append([]byte(nil), ctx.PostBody()...)
		writeJSON(ctx, 200, `{"code":0,"data":{"id":"s-1"}}`)
	}, nil)

	result, err := h.dispatcher.Invoke(context.Background(), "updateStrategy",
		types.Params{"id": "s-1", "name": "grid"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s-1"}`, string(result.Data))
	assert.JSONEq(t, `{"name":"grid"}`, string(body))
}

func TestInvokeNonEnvelopeBodyVerbatim(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, `[{"symbol":"BTCUSDT"}]`)
	}, nil)

	result, err := h.dispatcher.Invoke(context.Background(), "getMarkets", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"symbol":"BTCUSDT"}]`, string(result.Data))
}

func TestInvokeMissingPathParam(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) { writeJSON(ctx, 200, `{}`) }, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "cancelOrder", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, types.ErrMissingPathParam)
	assert.Zero(t, h.hits.Load())
}

func TestInvokeRetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		retry    bool
		wantHits int32
		wantErr  error
	}{
		{name: "server error retried once", status: 500, body: `{"detail":"boom"}`, retry: true, wantHits: 2, wantErr: ErrServer},
		{name: "server error without retry", status: 503, retry: false, wantHits: 1, wantErr: ErrServer},
		{name: "validation never retried", status: 422, body: `{"detail":[{"loc":["body","qty"],"msg":"must be positive"}]}`, retry: true, wantHits: 1, wantErr: ErrValidation},
		{name: "rate limit never retried", status: 429, retry: true, wantHits: 1, wantErr: ErrRateLimited},
		{name: "not found is unknown", status: 404, retry: true, wantHits: 1, wantErr: ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
				writeJSON(ctx, tt.status, tt.body)
			}, nil)

			_, err := h.dispatcher.Invoke(context.Background(), "createOrder",
				types.Params{"symbol": "BTCUSDT", "qty": -1}, &types.CallOptions{Retry: tt.retry})

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantHits, h.hits.Load())

			var callErr *Error
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, tt.status, callErr.Status)
			assert.NotEmpty(t, callErr.Message)
		})
	}
}

func TestInvokeSuccessNotRepeated(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 201, `{"code":0,"data":{"id":"o-1"}}`)
	}, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "createOrder",
		types.Params{"symbol": "BTCUSDT", "qty": 1}, &types.CallOptions{Retry: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.hits.Load())
}

func TestInvokeRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			writeJSON(ctx, 502, `bad gateway`)
			return
		}
		writeJSON(ctx, 200, `{"code":0,"data":[1,2,3]}`)
	}, nil)

	result, err := h.dispatcher.Invoke(context.Background(), "getPositions", nil, &types.CallOptions{Retry: true})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(result.Data))
	assert.Equal(t, int32(2), h.hits.Load())
}

func TestInvokeNetworkError(t *testing.T) {
	var dials atomic.Int32
	dial := func(addr string) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {}, nil, WithDialer(dial))

	_, err := h.dispatcher.Invoke(context.Background(), "getBalances", nil, &types.CallOptions{Retry: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(2), dials.Load())
	assert.Equal(t, KindNetwork.Fallback(), err.(*Error).Message)
}

func TestInvokeContextCancellation(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		<-release
		writeJSON(ctx, 200, `{}`)
	}, nil)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := h.dispatcher.Invoke(ctx, "getOrders", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnauthorizedEmitsBeforeReturn(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 401, `{"detail":"Token expired"}`)
	}, nil, WithTokenSource(staticToken("stale")))

	var events []types.AuthEvent
	h.dispatcher.OnAuth(func(event types.AuthEvent) {
		events = append(events, event)
	})

	_, err := h.dispatcher.Invoke(context.Background(), "getNotifications", nil, &types.CallOptions{Retry: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, "Token expired", err.(*Error).Message)
	assert.Equal(t, int32(1), h.hits.Load())

	require.Len(t, events, 1)
	assert.Equal(t, types.AuthUnauthorized, events[0].Type)
	assert.Equal(t, "getNotifications", events[0].Operation)
}

func TestUnauthorizedFallbackMessage(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(401)
	}, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "getProfile", nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindAuth.Fallback(), err.(*Error).Message)
}

func TestLoginAndLogoutEvents(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/v1/auth/login":
			writeJSON(ctx, 200, `{"code":0,"data":{"access_token":"new-token","user":{"id":7,"email":"a@b.c"}}}`)
		default:
			writeJSON(ctx, 200, `{"code":0,"data":null}`)
		}
	}, nil)

	var events []types.AuthEvent
	h.dispatcher.OnAuth(func(event types.AuthEvent) {
		events = append(events, event)
	})

	_, err := h.dispatcher.Invoke(context.Background(), OpLogin, types.Params{"email": "a@b.c", "password": "x"}, nil)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, types.AuthLogin, events[0].Type)
	require.NotNil(t, events[0].Credential)
	assert.Equal(t, "new-token", events[0].Credential.AccessToken)
	assert.JSONEq(t, `{"id":7,"email":"a@b.c"}`, string(events[0].Credential.User))

	require.NoError(t, h.dispatcher.Logout(context.Background()))
	require.Len(t, events, 2)
	assert.Equal(t, types.AuthLogout, events[1].Type)
}

func TestReadThroughCacheAndInvalidation(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Method()) {
		case "GET":
			writeJSON(ctx, 200, `{"code":0,"data":[{"id":"s-1"}]}`)
		default:
			writeJSON(ctx, 200, `{"code":0,"data":{"id":"s-2"}}`)
		}
	}, nil)

	list := &types.CallOptions{Cache: &types.CacheOptions{TTL: time.Minute, Key: "strategies.list"}}

	first, err := h.dispatcher.Invoke(context.Background(), "getStrategies", nil, list)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := h.dispatcher.Invoke(context.Background(), "getStrategies", nil, list)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.JSONEq(t, string(first.Data), string(second.Data))
	assert.Equal(t, int32(1), h.hits.Load())

	_, err = h.dispatcher.Invoke(context.Background(), "createStrategy", types.Params{"name": "dca"},
		&types.CallOptions{Invalidate: []string{`^strategies\.`}})
	require.NoError(t, err)
	assert.False(t, h.cache.Read("strategies.list", nil))

	third, err := h.dispatcher.Invoke(context.Background(), "getStrategies", nil, list)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, int32(3), h.hits.Load())
}

func TestRefreshBypassesReadAndKeepsEntryOnFailure(t *testing.T) {
	var fail atomic.Bool

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		if fail.Load() {
			writeJSON(ctx, 503, `{}`)
			return
		}
		writeJSON(ctx, 200, `{"code":0,"data":{"open":4}}`)
	}, nil)

	h.cache.Write("getPositions", map[string]int{"open": 3}, cache.WithTTL(time.Minute))

	refresh := &types.CallOptions{Cache: &types.CacheOptions{TTL: time.Minute, Refresh: true}}

	result, err := h.dispatcher.Invoke(context.Background(), "getPositions", nil, refresh)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, int32(1), h.hits.Load())

	var out map[string]int
	require.True(t, h.cache.Read("getPositions", &out))
	assert.Equal(t, 4, out["open"])

	fail.Store(true)
	_, err = h.dispatcher.Invoke(context.Background(), "getPositions", nil, refresh)
	assert.ErrorIs(t, err, ErrServer)

	require.True(t, h.cache.Read("getPositions", &out))
	assert.Equal(t, 4, out["open"])
}

func TestDerivedCacheKeyIsCanonical(t *testing.T) {
	a, err := CacheKey("getTicker", types.Params{"symbol": "ETHUSDT", "depth": 5})
	require.NoError(t, err)
	b, err := CacheKey("getTicker", types.Params{"depth": 5, "symbol": "ETHUSDT"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `getTicker.{"depth":5,"symbol":"ETHUSDT"}`, a)
	assert.True(t, regexp.MustCompile(`^getTicker\.`).MatchString(a))
}

func TestFailedCallNotCached(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 500, `{}`)
	}, nil)

	opts := &types.CallOptions{Cache: &types.CacheOptions{Key: "balances.all"}}
	_, err := h.dispatcher.Invoke(context.Background(), "getBalances", nil, opts)
	require.Error(t, err)
	assert.False(t, h.cache.Read("balances.all", nil))
}

func TestConcurrentGetsShareOneCall(t *testing.T) {
	entered := make(chan struct{}, 10)
	release := make(chan struct{})

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		entered <- struct{}{}
		<-release
		writeJSON(ctx, 200, `{"code":0,"data":{"BTC":1}}`)
	}, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*types.Result, callers)
	errs := make([]error, callers)

	call := func(i int) {
		defer wg.Done()
		results[i], errs[i] = h.dispatcher.Invoke(context.Background(), "getBalances", nil, nil)
	}

	wg.Add(1)
	go call(0)
	<-entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go call(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), h.hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, `{"BTC":1}`, string(results[i].Data))
	}
}

func TestSharedStorageKeyDoesNotMergeOperations(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})

	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		entered <- struct{}{}
		<-release
		writeJSON(ctx, 200, `{"code":0,"data":"`+string(ctx.Path())+`"}`)
	}, nil)

	opts := &types.CallOptions{Cache: &types.CacheOptions{TTL: time.Minute, Key: "dashboard"}}

	var (
		wg        sync.WaitGroup
		balances  *types.Result
		positions *types.Result
		errs      [2]error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		balances, errs[0] = h.dispatcher.Invoke(context.Background(), "getBalances", nil, opts)
	}()
	<-entered
	go func() {
		defer wg.Done()
		positions, errs[1] = h.dispatcher.Invoke(context.Background(), "getPositions", nil, opts)
	}()
	<-entered
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(2), h.hits.Load())
	assert.Equal(t, "getBalances", balances.Operation)
	assert.JSONEq(t, `"/api/v1/account/balances"`, string(balances.Data))
	assert.Equal(t, "getPositions", positions.Operation)
	assert.JSONEq(t, `"/api/v1/positions"`, string(positions.Data))
}

func TestMutationsAreNotShared(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(20 * time.Millisecond)
		writeJSON(ctx, 200, `{"code":0,"data":{}}`)
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.dispatcher.Invoke(context.Background(), "createOrder", types.Params{"symbol": "BTCUSDT"}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), h.hits.Load())
}

func TestCompressedResponses(t *testing.T) {
	payload := `{"code":0,"data":{"compressed":true}}`

	t.Run("brotli", func(t *testing.T) {
		h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write([]byte(payload))
			_ = w.Close()

			ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, "br")
			ctx.SetContentType("application/json")
			ctx.SetBody(buf.Bytes())
		}, nil)

		result, err := h.dispatcher.Invoke(context.Background(), "getRiskLimits", nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"compressed":true}`, string(result.Data))
	})

	t.Run("gzip", func(t *testing.T) {
		h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
			ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, "gzip")
			ctx.SetContentType("application/json")
			ctx.SetBody(fasthttp.AppendGzipBytes(nil, []byte(payload)))
		}, nil)

		result, err := h.dispatcher.Invoke(context.Background(), "getRiskLimits", nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"compressed":true}`, string(result.Data))
	})
}

func TestUndecodableBodyIsUnknownAndNotRetried(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, "gzip")
		ctx.SetContentType("application/json")
		ctx.SetBodyString("plain text, not gzip")
	}, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "getRiskLimits", nil, &types.CallOptions{Retry: true})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknown)
	assert.NotErrorIs(t, err, ErrNetwork)

	var callErr *Error
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, 200, callErr.Status)
	assert.Equal(t, int32(1), h.hits.Load())
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 503, `{}`)
	}, func(cfg *types.ClientConfig) {
		cfg.Client.CircuitBreaker = &types.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			RecoveryTimeout:  time.Hour,
			HalfOpenRequests: 1,
		}
	})

	for i := 0; i < 2; i++ {
		_, err := h.dispatcher.Invoke(context.Background(), "getTrades", nil, nil)
		assert.ErrorIs(t, err, ErrServer)
	}

	_, err := h.dispatcher.Invoke(context.Background(), "getTrades", nil, nil)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, types.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(2), h.hits.Load())

	svc, ok := h.dispatcher.Service("trading")
	require.True(t, ok)
	assert.Equal(t, BreakerOpen, svc.Breaker().State())
}

func TestCallMetrics(t *testing.T) {
	h := newHarness(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, `{"code":0,"data":{}}`)
	}, nil)

	_, err := h.dispatcher.Invoke(context.Background(), "getAlerts", nil, nil)
	require.NoError(t, err)

	ok := h.metrics.Counter("client_calls_total", map[string]string{"operation": "getAlerts", "result": "ok"})
	assert.Equal(t, float64(1), ok.Get())

	hist := h.metrics.Histogram("client_call_duration_seconds", durationBuckets, map[string]string{"operation": "getAlerts"})
	assert.Equal(t, uint64(1), hist.GetCount())
}
