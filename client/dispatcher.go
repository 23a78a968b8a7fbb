package client

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

const logBodyLimit = 2048

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Dispatcher invokes named remote operations with a uniform retry,
// classification and credential-event policy.
type Dispatcher struct {
	logger    types.Logger
	metrics   types.MetricsManager
	config    *types.DispatcherConfig
	registry  *Registry
	services  map[string]*ServiceClient
	cache     *cache.Manager
	tokens    types.TokenSource
	dial      fasthttp.DialFunc
	group     singleflight.Group
	listeners []types.AuthListener
	patterns  sync.Map
	mu        sync.RWMutex
}

type Option func(*Dispatcher)

func WithCache(manager *cache.Manager) Option {
	return func(d *Dispatcher) {
		d.cache = manager
	}
}

func WithTokenSource(tokens types.TokenSource) Option {
	return func(d *Dispatcher) {
		d.tokens = tokens
	}
}

func WithMetrics(metrics types.MetricsManager) Option {
	return func(d *Dispatcher) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithDialer replaces the TCP dialer of every service client.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(d *Dispatcher) {
		d.dial = dial
	}
}

func NewDispatcher(config types.ConfigManager, logger types.Logger, opts ...Option) (*Dispatcher, error) {
	cfg := config.GetConfig()
	if cfg.Client == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "client section missing")
	}

	d := &Dispatcher{
		logger:   logger,
		config:   cfg.Client,
		registry: NewRegistry(cfg.Client.Operations),
		services: make(map[string]*ServiceClient, len(cfg.Services)),
	}

	for _, opt := range opts {
		opt(d)
	}

	for name, svc := range cfg.Services {
		d.services[name] = NewServiceClient(logger, name, svc, cfg.Client.DefaultTimeout, cfg.Client.CircuitBreaker, d.dial)
	}

	logger.Info("Dispatcher initialized",
		zap.Int("services", len(d.services)),
		zap.Int("operations", len(d.registry.List())))

	return d, nil
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

func (d *Dispatcher) Service(name string) (*ServiceClient, bool) {
	svc, ok := d.services[name]
	return svc, ok
}

// BreakerStates maps each service to its breaker state.
func (d *Dispatcher) BreakerStates() map[string]string {
	states := make(map[string]string, len(d.services))
	for name, svc := range d.services {
		states[name] = svc.Breaker().State().String()
	}
	return states
}

// OnAuth registers a listener for credential events. Listeners run
// synchronously, before the call that produced the event returns.
func (d *Dispatcher) OnAuth(listener types.AuthListener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, listener)
	d.mu.Unlock()
}

func (d *Dispatcher) SetTokenSource(tokens types.TokenSource) {
	d.mu.Lock()
	d.tokens = tokens
	d.mu.Unlock()
}

// InvokeAs invokes operation and decodes the unwrapped data into T.
func InvokeAs[T any](ctx context.Context, invoker types.Invoker, operation string, params types.Params, opts *types.CallOptions) (T, error) {
	var out T

	result, err := invoker.Invoke(ctx, operation, params, opts)
	if err != nil {
		return out, err
	}

	if err = result.Decode(&out); err != nil {
		return out, types.WrapError(err, "failed to decode "+operation+" result")
	}

	return out, nil
}

func (d *Dispatcher) Invoke(ctx context.Context, operation string, params types.Params, opts *types.CallOptions) (*types.Result, error) {
	if opts == nil {
		opts = &types.CallOptions{}
	}

	op, ok := d.registry.Lookup(operation)
	if !ok {
		d.record(operation, KindUnknownOperation.String())
		return nil, &Error{Kind: KindUnknownOperation, Operation: operation, Message: KindUnknownOperation.Fallback()}
	}

	svc, ok := d.services[op.Service]
	if !ok {
		d.record(operation, KindUnknownOperation.String())
		return nil, &Error{
			Kind:      KindUnknownOperation,
			Operation: operation,
			Message:   KindUnknownOperation.Fallback(),
			Err:       types.Errorf(types.ErrClientNotFound, "service: %s", op.Service),
		}
	}

	key, err := CacheKey(operation, params)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Operation: operation, Message: KindUnknown.Fallback(), Err: err}
	}

	useCache := opts.Cache != nil && d.cache != nil
	storeKey := key
	if useCache && opts.Cache.Key != "" {
		storeKey = opts.Cache.Key
	}

	if useCache && !opts.Cache.Refresh {
		var data json.RawMessage
		if d.cache.Read(storeKey, &data, cache.WithBackend(opts.Cache.Backend)) {
			d.record(operation, "cached")
			return &types.Result{Operation: operation, Status: fasthttp.StatusOK, Cached: true, Data: data}, nil
		}
	}

	call := func() (*types.Result, error) {
		result, err := d.execute(ctx, op, svc, params, opts)
		if err != nil {
			return nil, err
		}
		if useCache {
			d.cache.Write(storeKey, result.Data, cache.WithTTL(opts.Cache.TTL), cache.WithBackend(opts.Cache.Backend))
		}
		return result, nil
	}

	var result *types.Result
	if op.Method == fasthttp.MethodGet {
		// Keyed by operation and params, never by the storage key.
		shared, err, _ := d.group.Do(key, func() (interface{}, error) {
			return call()
		})
		if err != nil {
			return nil, err
		}
		copied := *shared.(*types.Result)
		result = &copied
	} else {
		result, err = call()
		if err != nil {
			return nil, err
		}
	}

	d.invalidate(opts.Invalidate)

	return result, nil
}

// Logout asks the auth service to end the session and emits AuthLogout
// whatever the outcome.
func (d *Dispatcher) Logout(ctx context.Context) error {
	_, err := d.Invoke(ctx, OpLogout, nil, nil)
	if err != nil && KindOf(err) != KindAuth {
		d.logger.Warn("Logout request failed", zap.Error(err))
	}

	d.emit(types.AuthEvent{Type: types.AuthLogout, Operation: OpLogout})

	return err
}

func (d *Dispatcher) Close() {
	for _, svc := range d.services {
		svc.Close()
	}
}

func (d *Dispatcher) execute(ctx context.Context, op types.Operation, svc *ServiceClient, params types.Params, opts *types.CallOptions) (*types.Result, error) {
	start := time.Now()
	defer d.observe(op.Name, start)

	req, err := buildRequest(op, params)
	if err != nil {
		d.record(op.Name, KindValidation.String())
		return nil, &Error{Kind: KindValidation, Operation: op.Name, Message: err.Error(), Err: err}
	}

	attempts := 1
	if opts.Retry {
		attempts = 2
	}

	var callErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		var result *types.Result
		result, callErr = d.attempt(ctx, op, svc, req, opts)
		if callErr == nil {
			d.record(op.Name, "ok")
			return result, nil
		}

		if attempt == attempts || !callErr.Kind.Retryable() || ctx.Err() != nil {
			break
		}

		d.logger.Debug("Retrying call",
			zap.String("operation", op.Name),
			zap.String("kind", callErr.Kind.String()),
			zap.Int("status", callErr.Status))

		if err = sleepContext(ctx, d.config.RetryBackoff); err != nil {
			break
		}
	}

	d.record(op.Name, callErr.Kind.String())
	return nil, callErr
}

func (d *Dispatcher) attempt(ctx context.Context, op types.Operation, svc *ServiceClient, req *builtRequest, opts *types.CallOptions) (*types.Result, *Error) {
	requestID := uuid.NewString()

	if !svc.Breaker().Allow() {
		return nil, newNetworkError(op.Name, requestID, errors.Wrap(types.ErrCircuitBreakerOpen, op.Service))
	}

	headers := map[string]string{
		"X-Request-ID":    requestID,
		"Accept-Encoding": "br, gzip",
	}
	if token := d.accessToken(); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	resp, err := svc.Do(ctx, req, headers, opts.Timeout)
	if err != nil {
		svc.Breaker().RecordFailure()
		d.logger.Warn("Call failed without response",
			zap.String("operation", op.Name),
			zap.String("service", op.Service),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, newNetworkError(op.Name, requestID, err)
	}

	if resp.decodeErr != nil {
		svc.Breaker().RecordSuccess()
		d.logger.Error("Undecodable response body",
			zap.String("operation", op.Name),
			zap.String("service", op.Service),
			zap.Int("status", resp.status),
			zap.String("request_id", requestID),
			zap.Error(resp.decodeErr))
		return nil, &Error{
			Kind:      KindUnknown,
			Operation: op.Name,
			Status:    resp.status,
			RequestID: requestID,
			Message:   KindUnknown.Fallback(),
			Err:       resp.decodeErr,
		}
	}

	if resp.status >= 200 && resp.status < 300 {
		svc.Breaker().RecordSuccess()

		result := &types.Result{
			Operation: op.Name,
			Status:    resp.status,
			RequestID: requestID,
			Data:      unwrapEnvelope(resp.body),
		}

		if op.Name == OpLogin {
			d.emitLogin(result)
		}

		return result, nil
	}

	callErr := newStatusError(op.Name, resp.status, resp.body, requestID)

	if countsAsBreakerFailure(callErr.Kind) {
		svc.Breaker().RecordFailure()
	} else {
		svc.Breaker().RecordSuccess()
	}

	switch callErr.Kind {
	case KindAuth:
		d.emit(types.AuthEvent{Type: types.AuthUnauthorized, Operation: op.Name, Message: callErr.Message})
	case KindRateLimited, KindServer:
		d.logger.Error("Call rejected by service",
			zap.String("operation", op.Name),
			zap.String("service", op.Service),
			zap.Int("status", resp.status),
			zap.String("request_id", requestID),
			zap.String("body", utils.Truncate(utils.BytesToString(resp.body), logBodyLimit)))
	}

	return nil, callErr
}

type envelope struct {
	Code      *int            `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp interface{}     `json:"timestamp"`
	RequestID string          `json:"request_id"`
}

// unwrapEnvelope returns data from a {code, message, data, ...} body and the
// body itself for anything else.
func unwrapEnvelope(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := utils.Unmarshal(body, &fields); err != nil {
		return body
	}

	_, hasData := fields["data"]
	_, hasCode := fields["code"]
	if !hasData || !hasCode {
		return body
	}

	var env envelope
	if err := utils.Unmarshal(body, &env); err != nil {
		return body
	}

	return env.Data
}

type loginPayload struct {
	AccessToken string          `json:"access_token"`
	Token       string          `json:"token"`
	User        json.RawMessage `json:"user"`
}

func (d *Dispatcher) emitLogin(result *types.Result) {
	var payload loginPayload
	if err := result.Decode(&payload); err != nil {
		d.logger.Warn("Login response has no credential", zap.Error(err))
		return
	}

	token := payload.AccessToken
	if token == "" {
		token = payload.Token
	}
	if token == "" {
		d.logger.Warn("Login response has no access token", zap.String("request_id", result.RequestID))
		return
	}

	d.emit(types.AuthEvent{
		Type:       types.AuthLogin,
		Operation:  OpLogin,
		Credential: &types.Credential{AccessToken: token, User: payload.User},
	})
}

func (d *Dispatcher) emit(event types.AuthEvent) {
	d.mu.RLock()
	listeners := make([]types.AuthListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	d.logger.Debug("Auth event",
		zap.String("type", event.Type.String()),
		zap.String("operation", event.Operation))

	for _, listener := range listeners {
		listener(event)
	}
}

func (d *Dispatcher) accessToken() string {
	d.mu.RLock()
	tokens := d.tokens
	d.mu.RUnlock()

	if tokens == nil {
		return ""
	}
	return tokens.AccessToken()
}

func (d *Dispatcher) invalidate(patterns []string) {
	if len(patterns) == 0 || d.cache == nil {
		return
	}

	for _, pattern := range patterns {
		re, err := d.compile(pattern)
		if err != nil {
			d.logger.Warn("Invalid invalidation pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		d.cache.ClearByPattern(re)
	}
}

func (d *Dispatcher) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := d.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	d.patterns.Store(pattern, re)
	return re, nil
}

func (d *Dispatcher) record(operation, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Counter("client_calls_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()
}

func (d *Dispatcher) observe(operation string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.Histogram("client_call_duration_seconds", durationBuckets, map[string]string{
		"operation": operation,
	}).ObserveDuration(start)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
