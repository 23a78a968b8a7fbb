package connection

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-trade-client/types"
)

var transitions = map[types.ConnectionStatus][]types.ConnectionStatus{
	types.StatusDisconnected: {types.StatusConnecting},
	types.StatusConnecting:   {types.StatusConnected, types.StatusDisconnected},
	types.StatusConnected:    {types.StatusReconnecting, types.StatusDisconnected},
	types.StatusReconnecting: {types.StatusConnected, types.StatusDisconnected},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to types.ConnectionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Tracker holds the live status of the push channel and its subscriptions.
// It starts Disconnected and is never persisted.
type Tracker struct {
	logger        types.Logger
	metrics       types.MetricsManager
	status        types.ConnectionStatus
	subscriptions map[string]struct{}
	listeners     []types.ConnectionListener
	mu            sync.RWMutex
}

func NewTracker(logger types.Logger, metrics types.MetricsManager) *Tracker {
	t := &Tracker{
		logger:        logger,
		metrics:       metrics,
		status:        types.StatusDisconnected,
		subscriptions: make(map[string]struct{}),
	}
	t.recordStatus(types.StatusDisconnected)
	return t
}

// Transition moves the tracker to status. A disallowed edge leaves the state
// unchanged and returns ErrInvalidTransition.
func (t *Tracker) Transition(to types.ConnectionStatus) error {
	t.mu.Lock()
	from := t.status
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return types.Errorf(types.ErrInvalidTransition, "%s -> %s", from, to)
	}
	t.status = to
	listeners := make([]types.ConnectionListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	t.logger.Debug("Connection state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	t.recordStatus(to)

	for _, listener := range listeners {
		listener(from, to)
	}

	return nil
}

func (t *Tracker) Status() types.ConnectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Tracker) IsConnected() bool {
	return t.Status() == types.StatusConnected
}

// Subscribe adds channel to the active set. It reports false when the channel
// was already present.
func (t *Tracker) Subscribe(channel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscriptions[channel]; ok {
		return false
	}
	t.subscriptions[channel] = struct{}{}
	return true
}

func (t *Tracker) Unsubscribe(channel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscriptions[channel]; !ok {
		return false
	}
	delete(t.subscriptions, channel)
	return true
}

func (t *Tracker) Subscriptions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedSubscriptions()
}

func (t *Tracker) Snapshot() types.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return types.ConnectionState{
		Status:        t.status,
		Connected:     t.status == types.StatusConnected,
		Reconnecting:  t.status == types.StatusReconnecting,
		Subscriptions: t.sortedSubscriptions(),
	}
}

// OnChange registers a listener called after every accepted transition.
func (t *Tracker) OnChange(listener types.ConnectionListener) {
	if listener == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, listener)
	t.mu.Unlock()
}

func (t *Tracker) sortedSubscriptions() []string {
	channels := make([]string, 0, len(t.subscriptions))
	for channel := range t.subscriptions {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

func (t *Tracker) recordStatus(status types.ConnectionStatus) {
	if t.metrics == nil {
		return
	}
	t.metrics.Gauge("connection_status", nil).Set(float64(status))
}
