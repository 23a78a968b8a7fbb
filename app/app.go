package app

import (
	"context"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-trade-client/cache"
	"github.com/saiset-co/sai-trade-client/client"
	"github.com/saiset-co/sai-trade-client/connection"
	"github.com/saiset-co/sai-trade-client/health"
	"github.com/saiset-co/sai-trade-client/logger"
	"github.com/saiset-co/sai-trade-client/metrics"
	"github.com/saiset-co/sai-trade-client/poller"
	"github.com/saiset-co/sai-trade-client/session"
	"github.com/saiset-co/sai-trade-client/types"
)

// App owns every component built from one configuration. There is no global
// instance; callers pass the App (or its parts) where they are needed.
type App struct {
	Config      types.ConfigManager
	Logger      types.LoggerManager
	Metrics     types.MetricsManager
	Cache       *cache.Manager
	Session     *session.Manager
	Dispatcher  *client.Dispatcher
	Tracker     *connection.Tracker
	Channel     *connection.Channel
	Invalidator *PushInvalidator
	Poller      *poller.Poller
	Health      types.HealthManager

	running bool
	mu      sync.Mutex
}

type Option func(*options)

type options struct {
	dial fasthttp.DialFunc
}

// WithDialer routes every service client through dial.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// New builds the component graph. Nothing is started.
func New(ctx context.Context, config types.ConfigManager, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := config.GetConfig()

	loggerManager, err := logger.NewManager(config)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	metricsManager := metrics.NewManager(loggerManager, cfg.Metrics)

	cacheManager, err := cache.NewManager(ctx, config, loggerManager, metricsManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to create cache manager")
	}

	sessionManager, err := session.NewManager(config, loggerManager, cacheManager)
	if err != nil {
		_ = cacheManager.Close()
		return nil, types.WrapError(err, "failed to create session manager")
	}

	dispatcherOpts := []client.Option{
		client.WithCache(cacheManager),
		client.WithTokenSource(sessionManager),
		client.WithMetrics(metricsManager),
	}
	if o.dial != nil {
		dispatcherOpts = append(dispatcherOpts, client.WithDialer(o.dial))
	}

	dispatcher, err := client.NewDispatcher(config, loggerManager, dispatcherOpts...)
	if err != nil {
		_ = cacheManager.Close()
		return nil, types.WrapError(err, "failed to create dispatcher")
	}
	dispatcher.OnAuth(sessionManager.HandleAuthEvent)

	a := &App{
		Config:     config,
		Logger:     loggerManager,
		Metrics:    metricsManager,
		Cache:      cacheManager,
		Session:    sessionManager,
		Dispatcher: dispatcher,
		Tracker:    connection.NewTracker(loggerManager, metricsManager),
	}

	if cfg.Channel != nil && cfg.Channel.Enabled {
		a.Channel, err = connection.NewChannel(loggerManager, metricsManager, cfg.Channel, a.Tracker)
		if err != nil {
			a.closeResources()
			return nil, types.WrapError(err, "failed to create channel")
		}

		if len(cfg.Channel.Invalidate) > 0 {
			if err = a.wireInvalidator(cfg.Channel); err != nil {
				a.closeResources()
				return nil, err
			}
		}
	}

	if cfg.Poller != nil && cfg.Poller.Enabled {
		a.Poller, err = poller.NewPoller(config, loggerManager, metricsManager, dispatcher, a.Tracker)
		if err != nil {
			a.closeResources()
			return nil, types.WrapError(err, "failed to create poller")
		}
	}

	a.Health = a.newHealth(cfg)

	loggerManager.Info("Client initialized",
		zap.String("name", cfg.Name),
		zap.String("version", cfg.Version),
		zap.Bool("channel", a.Channel != nil),
		zap.Bool("poller", a.Poller != nil))

	return a, nil
}

// Start brings up the background components. A channel that cannot connect
// is logged and left to the poller.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return types.ErrAlreadyRunning
	}

	if err := a.Logger.Start(); err != nil {
		return err
	}

	if a.Channel != nil {
		if err := a.Channel.Start(ctx); err != nil {
			a.Logger.Warn("Channel unavailable, relying on polling", zap.Error(err))
		}
	}

	if a.Poller != nil {
		if err := a.Poller.Start(ctx); err != nil {
			if a.Channel != nil && a.Channel.IsRunning() {
				_ = a.Channel.Stop()
			}
			_ = a.Logger.Stop()
			return types.WrapError(err, "failed to start poller")
		}
	}

	a.running = true
	a.Logger.Info("Client started")
	return nil
}

// Stop halts background work and releases every backend.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return types.ErrNotRunning
	}
	a.running = false

	var g errgroup.Group

	if a.Channel != nil && a.Channel.IsRunning() {
		g.Go(a.Channel.Stop)
	}
	if a.Poller != nil {
		g.Go(a.Poller.Stop)
	}

	err := g.Wait()
	if err != nil {
		a.Logger.Error("Error while stopping background components", zap.Error(err))
	}

	if a.Invalidator != nil {
		a.Invalidator.Flush()
	}

	a.closeResources()
	a.Logger.Info("Client stopped")
	_ = a.Logger.Stop()

	return err
}

// Close releases resources of an App that was never started.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	a.closeResources()
}

func (a *App) wireInvalidator(cfg *types.ChannelConfig) error {
	invalidator, err := NewPushInvalidator(a.Logger, a.Cache, cfg.Invalidate, cfg.CoalesceDelay)
	if err != nil {
		return types.WrapError(err, "failed to create push invalidator")
	}

	for _, channel := range invalidator.Channels() {
		if err = a.Channel.Subscribe(channel, invalidator.Handle); err != nil {
			return err
		}
	}

	a.Invalidator = invalidator
	return nil
}

func (a *App) newHealth(cfg *types.ClientConfig) *health.Manager {
	hm := health.NewManager(a.Config, a.Logger)

	enabled := map[types.Backend]bool{types.BackendMemory: true}
	if cfg.Cache.Session != nil {
		enabled[types.BackendSession] = cfg.Cache.Session.Enabled
	}
	if cfg.Cache.Persistent != nil {
		enabled[types.BackendPersistent] = cfg.Cache.Persistent.Enabled
	}
	hm.RegisterChecker("cache", health.CacheCheck(a.Cache.Stats, enabled))
	hm.RegisterChecker("services", health.BreakerCheck(a.Dispatcher.BreakerStates))

	if a.Channel != nil {
		hm.RegisterChecker("connection", health.ConnectionCheck(a.Tracker.Snapshot, func() bool {
			return a.Poller != nil && a.Poller.IsRunning()
		}))
	}

	return hm
}

func (a *App) closeResources() {
	a.Dispatcher.Close()
	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("Failed to close cache", zap.Error(err))
	}
}
