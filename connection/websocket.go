package connection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
)

// Channel is the push-update client. It owns the websocket connection and
// drives the Tracker through every lifecycle edge.
type Channel struct {
	logger   types.Logger
	metrics  types.MetricsManager
	config   *types.ChannelConfig
	tracker  *Tracker
	dialer   *websocket.Dialer
	handlers map[string][]types.ChannelHandler
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	running  bool

	handlersMu sync.RWMutex
	writeMu    sync.Mutex
	lifeMu     sync.Mutex
}

func NewChannel(logger types.Logger, metrics types.MetricsManager, config *types.ChannelConfig, tracker *Tracker) (*Channel, error) {
	if config == nil || config.URL == "" {
		return nil, types.Errorf(types.ErrConfigIsNil, "channel url is required")
	}

	cfg := *config
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}

	logger.Info("Channel initialized",
		zap.String("url", cfg.URL),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay),
		zap.Int("max_retries", cfg.MaxRetries))

	return &Channel{
		logger:   logger,
		metrics:  metrics,
		config:   &cfg,
		tracker:  tracker,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handlers: make(map[string][]types.ChannelHandler),
	}, nil
}

func (c *Channel) Tracker() *Tracker {
	return c.tracker
}

// Start dials the server and returns once the first connection is up.
func (c *Channel) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.running {
		return types.ErrChannelAlreadyRunning
	}

	if err := c.tracker.Transition(types.StatusConnecting); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	conn, err := c.dial(runCtx)
	if err != nil {
		cancel()
		_ = c.tracker.Transition(types.StatusDisconnected)
		c.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	c.attach(runCtx, conn)
	_ = c.tracker.Transition(types.StatusConnected)
	c.resubscribe()

	go c.run(runCtx, conn, c.done)

	c.logger.Info("Channel started")
	return nil
}

// Stop closes the connection and waits for the read loop to finish.
func (c *Channel) Stop() error {
	c.lifeMu.Lock()
	if !c.running {
		c.lifeMu.Unlock()
		return types.ErrChannelNotRunning
	}
	cancel, done := c.cancel, c.done
	c.lifeMu.Unlock()

	cancel()
	c.closeConn(true)
	<-done

	c.logger.Info("Channel stopped")
	return nil
}

func (c *Channel) IsRunning() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.running
}

// Subscribe registers handler for channel. The first handler for a channel
// sends a subscribe frame when connected; otherwise the subscription is sent
// on the next (re)connect.
func (c *Channel) Subscribe(channel string, handler types.ChannelHandler) error {
	if channel == "" || handler == nil {
		return types.Errorf(types.ErrInvalidParameter, "channel and handler are required")
	}

	c.handlersMu.Lock()
	c.handlers[channel] = append(c.handlers[channel], handler)
	c.handlersMu.Unlock()

	if !c.tracker.Subscribe(channel) || !c.tracker.IsConnected() {
		return nil
	}

	return c.sendCommand(frameSubscribe, channel)
}

func (c *Channel) Unsubscribe(channel string) error {
	c.handlersMu.Lock()
	delete(c.handlers, channel)
	c.handlersMu.Unlock()

	if !c.tracker.Unsubscribe(channel) || !c.tracker.IsConnected() {
		return nil
	}

	return c.sendCommand(frameUnsubscribe, channel)
}

func (c *Channel) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer func() {
		_ = c.tracker.Transition(types.StatusDisconnected)

		c.lifeMu.Lock()
		c.running = false
		c.cancel()
		c.lifeMu.Unlock()

		close(done)
	}()

	for {
		stopPing := c.startPing(ctx, conn)
		err := c.readLoop(conn)
		stopPing()

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("Channel connection lost", zap.Error(err))
		c.closeConn(false)

		if err := c.tracker.Transition(types.StatusReconnecting); err != nil {
			c.logger.Error("Unexpected connection state", zap.Error(err))
			return
		}

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}

		if !c.attach(ctx, conn) {
			return
		}
		_ = c.tracker.Transition(types.StatusConnected)
		c.resubscribe()
	}
}

func (c *Channel) reconnect(ctx context.Context) *websocket.Conn {
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-time.After(c.config.ReconnectDelay):
		case <-ctx.Done():
			return nil
		}

		c.logger.Info("Reconnection attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.config.MaxRetries))

		conn, err := c.dial(ctx)
		if err == nil {
			c.logger.Info("Reconnected to channel server")
			return conn
		}

		c.logger.Error("Reconnection attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	c.logger.Error("Max reconnection attempts reached")
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to dial channel server")
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	return conn, nil
}

// attach installs conn unless ctx is already cancelled, in which case conn
// is closed. Stop cancels before taking writeMu in closeConn, so a conn is
// either seen by closeConn or never installed.
func (c *Channel) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if ctx.Err() != nil {
		_ = conn.Close()
		return false
	}

	c.conn = conn
	return true
}

func (c *Channel) closeConn(graceful bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return
	}

	if graceful {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteWait))
	}
	_ = c.conn.Close()
	c.conn = nil
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.PongWait))

		var message types.ChannelMessage
		if err := utils.Decode(data, &message); err != nil || message.Channel == "" {
			c.logger.Warn("Dropping malformed channel frame", zap.Int("size", len(data)))
			c.record("", "malformed")
			continue
		}

		c.dispatch(&message)
	}
}

func (c *Channel) dispatch(message *types.ChannelMessage) {
	c.handlersMu.RLock()
	handlers := make([]types.ChannelHandler, len(c.handlers[message.Channel]))
	copy(handlers, c.handlers[message.Channel])
	c.handlersMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handlers for channel", zap.String("channel", message.Channel))
		c.record(message.Channel, "no_handlers")
		return
	}

	result := "success"
	for i, handler := range handlers {
		if err := c.safeHandle(handler, message); err != nil {
			result = "error"
			c.logger.Error("Channel handler failed",
				zap.String("channel", message.Channel),
				zap.Int("handler_index", i),
				zap.Error(err))
		}
	}
	c.record(message.Channel, result)
}

func (c *Channel) safeHandle(handler types.ChannelHandler, message *types.ChannelMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewErrorf("handler panic: %v", r)
		}
	}()
	return handler(message)
}

func (c *Channel) startPing(ctx context.Context, conn *websocket.Conn) func() {
	if c.config.PingInterval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(c.config.PingInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait)); err != nil {
					c.logger.Debug("Ping failed", zap.Error(err))
					return
				}
			}
		}
	}()

	return func() { close(stop) }
}

func (c *Channel) resubscribe() {
	for _, channel := range c.tracker.Subscriptions() {
		if err := c.sendCommand(frameSubscribe, channel); err != nil {
			c.logger.Error("Failed to resubscribe",
				zap.String("channel", channel),
				zap.Error(err))
		}
	}
}

func (c *Channel) sendCommand(frameType, channel string) error {
	data, err := utils.Marshal(types.ChannelCommand{
		Type:    frameType,
		Channel: channel,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return types.WrapError(err, "failed to encode channel command")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return types.ErrChannelNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return types.WrapError(types.ErrChannelSendFailed, err.Error())
	}

	c.logger.Debug("Channel command sent",
		zap.String("type", frameType),
		zap.String("channel", channel))
	return nil
}

func (c *Channel) record(channel, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("channel_messages_total", map[string]string{
		"channel": channel,
		"result":  result,
	}).Inc()
}
